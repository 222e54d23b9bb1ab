package bqsp

// Deserializer is implemented by payload types that can be built from a Pack.
//
// DeserializeBox is called on a zero value and fills it from p. It must
// report an unknown type tag or a malformed payload as an error rather
// than panicking or leaving a default value behind. Every implementation
// defines its own error values.
type Deserializer interface {
	DeserializeBox(p Pack) error
}

// Des is a Box whose payload has been interpreted as a T.
// The Header is kept so the type tag and queue stay available.
type Des[T any] struct {
	Header Header
	Value  T
}

// Deserialize interprets the payload of p as a T.
//
// On failure the error of T's DeserializeBox is returned as is.
//
//	des, err := bqsp.Deserialize[schema.Payload](pack)
func Deserialize[T any, PT interface {
	*T
	Deserializer
}](p Pack) (Des[T], error) {
	var value T
	if err := PT(&value).DeserializeBox(p); err != nil {
		return Des[T]{}, err
	}

	return Des[T]{
		Header: p.Header(),
		Value:  value,
	}, nil
}
