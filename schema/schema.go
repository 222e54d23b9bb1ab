// Package schema is a reference payload schema for bqsp Boxes.
//
// It maps three type tags to three payload layouts:
//
//	0 Message  UTF-8 text
//	1 Number   uint32, big-endian, exactly 4 bytes
//	2 User     name 0x00 surname 0x00 age, with age as decimal text (0-255)
//
// Payload implements both bqsp.Serializer and bqsp.Deserializer. Every
// malformed payload is reported with one of the errors below, matchable
// with errors.Is.
package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/Zereker/bqsp"
)

var (
	// ErrInvalidType is returned for a type tag outside the schema, or one
	// that does not match the payload's Kind.
	ErrInvalidType = errors.New("schema: invalid type")
	// ErrNumberSize is returned when a Number payload is not exactly 4 bytes.
	ErrNumberSize = errors.New("schema: number is not 4 bytes")
	// ErrUserStructure is returned when a User payload lacks its NUL delimiters
	// or a field contains NUL.
	ErrUserStructure = errors.New("schema: user is not name, surname and age separated by NUL")
	// ErrInvalidUTF8 is returned when a text field is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("schema: text is not valid UTF-8")
	// ErrInvalidAge is returned when the age field is not a decimal number in 0-255.
	ErrInvalidAge = errors.New("schema: age is not a number between 0 and 255")
)

// Kind is the type tag of a Payload.
type Kind uint16

const (
	// KindMessage is a UTF-8 text payload.
	KindMessage Kind = 0
	// KindNumber is a big-endian uint32 payload.
	KindNumber Kind = 1
	// KindUser is a name, surname and age payload.
	KindUser Kind = 2
)

const numberSize = 4

// ParseKind returns the Kind for a header type tag.
func ParseKind(tag uint16) (Kind, error) {
	switch Kind(tag) {
	case KindMessage, KindNumber, KindUser:
		return Kind(tag), nil
	default:
		return 0, errors.Wrapf(ErrInvalidType, "tag %d", tag)
	}
}

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindNumber:
		return "number"
	case KindUser:
		return "user"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(k))
	}
}

// User is the payload of a KindUser Box.
type User struct {
	Name    string
	Surname string
	Age     uint8
}

// Payload is one of the three schema payloads; Kind selects which field is set.
type Payload struct {
	Kind    Kind
	Message string
	Number  uint32
	User    User
}

// Message returns a KindMessage Payload.
func Message(text string) Payload {
	return Payload{Kind: KindMessage, Message: text}
}

// Number returns a KindNumber Payload.
func Number(n uint32) Payload {
	return Payload{Kind: KindNumber, Number: n}
}

// NewUser returns a KindUser Payload.
func NewUser(name, surname string, age uint8) Payload {
	return Payload{Kind: KindUser, User: User{Name: name, Surname: surname, Age: age}}
}

// Box serializes p under its own Kind.
func (p Payload) Box(queue uint8) (bqsp.Pack, error) {
	return p.SerializeBox(uint16(p.Kind), queue)
}

// SerializeBox implements bqsp.Serializer. dataType must be the tag of p.Kind.
func (p Payload) SerializeBox(dataType uint16, queue uint8) (bqsp.Pack, error) {
	kind, err := ParseKind(dataType)
	if err != nil {
		return bqsp.Pack{}, err
	}
	if kind != p.Kind {
		return bqsp.Pack{}, errors.Wrapf(ErrInvalidType, "%s payload sent as %s", p.Kind, kind)
	}

	var payload []byte
	switch kind {
	case KindMessage:
		if !utf8.ValidString(p.Message) {
			return bqsp.Pack{}, errors.Wrap(ErrInvalidUTF8, "message")
		}
		payload = []byte(p.Message)
	case KindNumber:
		payload = binary.BigEndian.AppendUint32(make([]byte, 0, numberSize), p.Number)
	case KindUser:
		payload, err = p.User.encode()
		if err != nil {
			return bqsp.Pack{}, err
		}
	}

	return bqsp.NewPack(bqsp.Own(payload), dataType, queue), nil
}

func (u User) encode() ([]byte, error) {
	fields := [...]struct{ name, value string }{
		{"name", u.Name},
		{"surname", u.Surname},
	}
	for _, field := range fields {
		if !utf8.ValidString(field.value) {
			return nil, errors.Wrap(ErrInvalidUTF8, field.name)
		}
		if strings.IndexByte(field.value, 0) >= 0 {
			return nil, errors.Wrapf(ErrUserStructure, "%s contains NUL", field.name)
		}
	}

	age := strconv.Itoa(int(u.Age))
	payload := make([]byte, 0, len(u.Name)+len(u.Surname)+len(age)+2)
	payload = append(payload, u.Name...)
	payload = append(payload, 0)
	payload = append(payload, u.Surname...)
	payload = append(payload, 0)
	return append(payload, age...), nil
}

// DeserializeBox implements bqsp.Deserializer.
func (p *Payload) DeserializeBox(pack bqsp.Pack) error {
	kind, err := ParseKind(pack.Header().DataType())
	if err != nil {
		return err
	}

	data := pack.Data().Bytes()
	switch kind {
	case KindMessage:
		text, err := decodeText(data, "message")
		if err != nil {
			return err
		}
		*p = Message(text)
	case KindNumber:
		if len(data) != numberSize {
			return errors.Wrapf(ErrNumberSize, "got %d bytes", len(data))
		}
		*p = Number(binary.BigEndian.Uint32(data))
	case KindUser:
		user, err := decodeUser(data)
		if err != nil {
			return err
		}
		*p = Payload{Kind: KindUser, User: user}
	}

	return nil
}

// decodeUser splits data into exactly three fields. Anything after the age,
// including a further NUL, is part of the age field and fails ErrInvalidAge.
func decodeUser(data []byte) (User, error) {
	parts := bytes.SplitN(data, []byte{0}, 3)
	if len(parts) != 3 {
		return User{}, errors.Wrapf(ErrUserStructure, "found %d of 3 fields", len(parts))
	}

	name, err := decodeText(parts[0], "name")
	if err != nil {
		return User{}, err
	}
	surname, err := decodeText(parts[1], "surname")
	if err != nil {
		return User{}, err
	}
	ageText, err := decodeText(parts[2], "age")
	if err != nil {
		return User{}, err
	}

	age, err := strconv.ParseUint(ageText, 10, 8)
	if err != nil {
		return User{}, errors.Wrapf(ErrInvalidAge, "%q", ageText)
	}

	return User{Name: name, Surname: surname, Age: uint8(age)}, nil
}

func decodeText(b []byte, field string) (string, error) {
	if !utf8.Valid(b) {
		return "", errors.Wrap(ErrInvalidUTF8, field)
	}
	return string(b), nil
}

// String implements fmt.Stringer.
func (p Payload) String() string {
	switch p.Kind {
	case KindMessage:
		return fmt.Sprintf("message %q", p.Message)
	case KindNumber:
		return fmt.Sprintf("number %d", p.Number)
	case KindUser:
		return fmt.Sprintf("user %s %s (%d)", p.User.Name, p.User.Surname, p.User.Age)
	default:
		return p.Kind.String()
	}
}
