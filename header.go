package bqsp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Header layout on the wire, all fields little-endian with no padding:
//
//	[0,4) data_size  uint32
//	[4,6) data_type  uint16
//	[6,7) queue      uint8
const (
	dataSizeLen = 4
	dataTypeLen = 2
	queueLen    = 1

	// HeaderSize is the encoded size of a Header in bytes.
	HeaderSize = dataSizeLen + dataTypeLen + queueLen

	// MaxDataSize is the largest payload length the size field can carry.
	MaxDataSize = math.MaxUint32
)

// ErrShortHeader is returned when a header slice is not exactly HeaderSize bytes long.
var ErrShortHeader = errors.New("bqsp: header must be exactly 7 bytes")

// Header is the fixed-width prefix of a Box.
// It is a small value type and is cheap to copy.
type Header struct {
	dataSize uint32
	dataType uint16
	queue    uint8
}

// buildHeader creates the Header for data.
//
// The payload length is narrowed to 32 bits without any check: a payload
// longer than MaxDataSize produces a header that under-reports its size.
// Pack.Overflowed exposes that case to callers.
func buildHeader(data Data, dataType uint16, queue uint8) Header {
	return buildHeaderLen(data.Len(), dataType, queue)
}

// buildHeaderLen creates the Header for a payload of n bytes, narrowing n
// to 32 bits.
func buildHeaderLen(n int, dataType uint16, queue uint8) Header {
	return Header{
		dataSize: uint32(n),
		dataType: dataType,
		queue:    queue,
	}
}

// DataSize returns the declared payload length.
func (h Header) DataSize() uint32 {
	return h.dataSize
}

// DataType returns the type tag of the payload.
func (h Header) DataType() uint16 {
	return h.dataType
}

// Queue returns the queue number the Box is routed to.
func (h Header) Queue() uint8 {
	return h.queue
}

// Array encodes the Header into its wire form.
func (h Header) Array() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.dataSize)
	binary.LittleEndian.PutUint16(buf[4:6], h.dataType)
	buf[6] = h.queue
	return buf
}

// AppendHeader appends the wire form of h to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.dataSize)
	dst = binary.LittleEndian.AppendUint16(dst, h.dataType)
	return append(dst, h.queue)
}

// HeaderFromArray decodes a Header from its wire form.
//
// Any bit pattern is accepted. Whether the fields make sense is up to the
// writer and to the Deserializer of the payload.
func HeaderFromArray(b [HeaderSize]byte) Header {
	return Header{
		dataSize: binary.LittleEndian.Uint32(b[0:4]),
		dataType: binary.LittleEndian.Uint16(b[4:6]),
		queue:    b[6],
	}
}

// ParseHeader decodes a Header from b, which must be exactly HeaderSize bytes.
func ParseHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, ErrShortHeader
	}
	return HeaderFromArray([HeaderSize]byte(b)), nil
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("Header{size=%d type=%d queue=%d}", h.dataSize, h.dataType, h.queue)
}
