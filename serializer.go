package bqsp

// Serializer is implemented by payload types that can be turned into a Pack.
//
// SerializeBox may borrow from the receiver's own buffers, so the Pack is
// only valid while the receiver is alive and unchanged.
type Serializer interface {
	SerializeBox(dataType uint16, queue uint8) (Pack, error)
}

// OwnedSerializer is implemented by payload types that can produce a Pack
// detached from their own lifetime more cheaply than SerializeBox followed
// by Pack.ToOwned, typically by handing over a buffer they own.
type OwnedSerializer interface {
	Serializer
	SerializeOwnedBox(dataType uint16, queue uint8) (Pack, error)
}

// SerializeOwned serializes s into a Pack that owns its payload.
// Bytes are copied only when s cannot hand over its own buffer.
func SerializeOwned(s Serializer, dataType uint16, queue uint8) (Pack, error) {
	if owned, ok := s.(OwnedSerializer); ok {
		return owned.SerializeOwnedBox(dataType, queue)
	}

	pack, err := s.SerializeBox(dataType, queue)
	if err != nil {
		return Pack{}, err
	}
	return pack.ToOwned(), nil
}

// RawBytes is an opaque payload. It serializes to itself and any Pack
// deserializes into it, so it never fails in either direction.
type RawBytes []byte

// SerializeBox returns a Pack borrowing r.
func (r RawBytes) SerializeBox(dataType uint16, queue uint8) (Pack, error) {
	return NewPack(Borrow(r), dataType, queue), nil
}

// SerializeOwnedBox returns a Pack that takes over r.
// The caller must not modify r afterwards.
func (r RawBytes) SerializeOwnedBox(dataType uint16, queue uint8) (Pack, error) {
	return NewPack(Own(r), dataType, queue), nil
}

// DeserializeBox copies the payload of p into r.
func (r *RawBytes) DeserializeBox(p Pack) error {
	b := make([]byte, p.Data().Len())
	copy(b, p.Data().Bytes())
	*r = b
	return nil
}
