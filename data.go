// Package bqsp implements Box framing: a fixed-width Header followed by a
// variable-length Data payload, exchanged over any byte stream.
// It provides the Header wire codec, a copy-avoiding payload buffer,
// pluggable Serializer/Deserializer contracts and a small TCP transport
// that moves Boxes between peers.
package bqsp

// Data is the payload of a Box.
//
// A Data is either a borrowed view into memory owned by the caller or an
// independently owned allocation. The package never modifies the bytes of
// a Data. A borrowed Data is only valid while the caller keeps the source
// buffer alive and unmodified; call ToOwned before the Data has to outlive
// that buffer.
type Data struct {
	bytes []byte
	owned bool
}

// Borrow returns a Data that views b without copying it.
func Borrow(b []byte) Data {
	return Data{bytes: b}
}

// Own returns a Data that takes ownership of b without copying it.
// The caller must not use b afterwards.
func Own(b []byte) Data {
	return Data{bytes: b, owned: true}
}

// View returns a borrowed Data over the bytes of d.
func View(d *Data) Data {
	return Data{bytes: d.bytes}
}

// Bytes returns the payload bytes. The returned slice must not be modified.
func (d Data) Bytes() []byte {
	return d.bytes
}

// Len returns the payload length in bytes.
func (d Data) Len() int {
	return len(d.bytes)
}

// IsOwned reports whether d owns its bytes.
func (d Data) IsOwned() bool {
	return d.owned
}

// ToOwned returns a Data whose lifetime is independent of any borrowed
// source. A borrowed Data is copied with exactly one allocation; an owned
// Data is returned as is.
func (d Data) ToOwned() Data {
	if d.owned {
		return d
	}

	owned := make([]byte, len(d.bytes))
	copy(owned, d.bytes)
	return Data{bytes: owned, owned: true}
}
