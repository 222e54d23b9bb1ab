package bqsp

import (
	"errors"
	"io"
)

// ErrDataTooLarge is returned when a payload exceeds the allowed size,
// either the configured limit or the capacity of the size field.
var ErrDataTooLarge = errors.New("bqsp: data too large")

// ReadHeader reads exactly HeaderSize bytes from r and decodes them.
// It returns io.EOF if r ends before the first byte and
// io.ErrUnexpectedEOF if it ends inside the header.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return HeaderFromArray(buf), nil
}

// ReadPack reads one Box from r: a Header, then exactly DataSize payload
// bytes into an owned Data.
//
// A declared size above maxDataSize is rejected with ErrDataTooLarge before
// anything is allocated; maxDataSize <= 0 disables the check. A stream that
// ends inside the Box returns io.ErrUnexpectedEOF.
func ReadPack(r io.Reader, maxDataSize int) (Pack, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return Pack{}, err
	}

	if maxDataSize > 0 && uint64(header.DataSize()) > uint64(maxDataSize) {
		return Pack{}, ErrDataTooLarge
	}

	payload := make([]byte, header.DataSize())
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return Pack{}, io.ErrUnexpectedEOF
		}
		return Pack{}, err
	}

	return Pack{header: header, data: Own(payload)}, nil
}
