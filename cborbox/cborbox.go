// Package cborbox carries arbitrary Go values as CBOR-encoded Box payloads.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// value always produces the same payload bytes. Decoding rejects trailing
// bytes after the first data item.
//
//	pack, err := cborbox.Box[Event]{Value: ev}.SerializeBox(tagEvent, queue)
//	des, err := bqsp.Deserialize[cborbox.Box[Event]](pack)
package cborbox

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/Zereker/bqsp"
)

var (
	// ErrTypeMismatch is returned when the header type tag does not match
	// the tag declared by a Typed value.
	ErrTypeMismatch = errors.New("cborbox: type tag mismatch")
	// ErrDecode is returned when the payload is not a valid CBOR encoding of the value.
	ErrDecode = errors.New("cborbox: invalid payload")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cborbox: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Values decoded into any get string-keyed maps, like encoding/json.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("cborbox: CBOR decoder initialization failed: " + err.Error())
	}
}

// Typed is implemented by values bound to a single type tag.
type Typed interface {
	BoxType() uint16
}

// Box wraps a value so it can travel as a Box payload.
type Box[T any] struct {
	Value T
}

// SerializeBox implements bqsp.Serializer. The Pack owns its payload.
func (b Box[T]) SerializeBox(dataType uint16, queue uint8) (bqsp.Pack, error) {
	value := b.Value
	if err := checkType(&value, dataType); err != nil {
		return bqsp.Pack{}, err
	}

	payload, err := encMode.Marshal(value)
	if err != nil {
		return bqsp.Pack{}, errors.Wrap(err, "cborbox: encode")
	}

	return bqsp.NewPack(bqsp.Own(payload), dataType, queue), nil
}

// DeserializeBox implements bqsp.Deserializer.
func (b *Box[T]) DeserializeBox(p bqsp.Pack) error {
	var value T
	if err := checkType(&value, p.Header().DataType()); err != nil {
		return err
	}

	if err := decMode.Unmarshal(p.Data().Bytes(), &value); err != nil {
		return errors.Wrapf(ErrDecode, "%v", err)
	}

	b.Value = value
	return nil
}

// checkType enforces the tag of a Typed value, whether BoxType has a value
// or a pointer receiver. BoxType is called on the zero value when
// deserializing, so it must not depend on the value's fields.
func checkType[T any](v *T, dataType uint16) error {
	typed, ok := any(*v).(Typed)
	if !ok {
		typed, ok = any(v).(Typed)
	}
	if !ok {
		return nil
	}
	if want := typed.BoxType(); want != dataType {
		return errors.Wrapf(ErrTypeMismatch, "got %d, want %d", dataType, want)
	}
	return nil
}

// Marshal encodes v with the package's deterministic CBOR settings.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
