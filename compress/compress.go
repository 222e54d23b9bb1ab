// Package compress shrinks Box payloads with LZ4 or zstd.
//
// A compressed payload starts with a 5-byte frame header:
//
//	[0,1) algorithm     uint8
//	[1,5) raw length    uint32, little-endian
//	[5,…) compressed body
//
// The Box header keeps its type tag and queue; only the payload changes.
// Input that does not shrink is stored with AlgorithmNone.
package compress

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/Zereker/bqsp"
)

var (
	// ErrUnknownAlgorithm is returned for an algorithm byte or name this package does not know.
	ErrUnknownAlgorithm = errors.New("compress: unknown algorithm")
	// ErrTruncated is returned when a payload is shorter than the frame header.
	ErrTruncated = errors.New("compress: payload shorter than frame header")
	// ErrSizeMismatch is returned when the decompressed length differs from the declared raw length.
	ErrSizeMismatch = errors.New("compress: raw length mismatch")
	// ErrTooLarge is returned when the raw length exceeds MaxRawSize.
	ErrTooLarge = errors.New("compress: raw length above limit")
	// ErrCorrupt is returned when the decoder rejects the compressed body.
	ErrCorrupt = errors.New("compress: corrupt body")

	errIncompressible = errors.New("compress: incompressible")
)

// Algorithm identifies how a payload body is compressed. The values are
// part of the wire format.
type Algorithm uint8

const (
	// AlgorithmNone stores the body uncompressed.
	AlgorithmNone Algorithm = 0
	// AlgorithmLZ4 is an LZ4 block.
	AlgorithmLZ4 Algorithm = 1
	// AlgorithmZstd is a zstd frame.
	AlgorithmZstd Algorithm = 2
)

const (
	frameHeaderSize = 5

	// MaxRawSize bounds the decompressed size of a payload.
	MaxRawSize = 64 << 20
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses the name returned by Algorithm.String.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "none", "":
		return AlgorithmNone, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return 0, errors.Wrapf(ErrUnknownAlgorithm, "%q", name)
	}
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(MaxRawSize),
	)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress returns a Pack whose payload is the compressed form of p's payload.
func Compress(p bqsp.Pack, alg Algorithm) (bqsp.Pack, error) {
	raw := p.Data().Bytes()
	if len(raw) > MaxRawSize {
		return bqsp.Pack{}, errors.Wrapf(ErrTooLarge, "%d bytes", len(raw))
	}

	body, err := compressBody(raw, alg)
	if errors.Is(err, errIncompressible) {
		alg, body, err = AlgorithmNone, raw, nil
	}
	if err != nil {
		return bqsp.Pack{}, err
	}

	payload := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	payload[0] = byte(alg)
	binary.LittleEndian.PutUint32(payload[1:frameHeaderSize], uint32(len(raw)))
	payload = append(payload, body...)

	header := p.Header()
	return bqsp.NewPack(bqsp.Own(payload), header.DataType(), header.Queue()), nil
}

// Decompress reverses Compress. The result owns its payload unless the
// body was stored uncompressed, in which case it shares p's buffer.
func Decompress(p bqsp.Pack) (bqsp.Pack, error) {
	payload := p.Data().Bytes()
	if len(payload) < frameHeaderSize {
		return bqsp.Pack{}, errors.Wrapf(ErrTruncated, "%d bytes", len(payload))
	}

	alg := Algorithm(payload[0])
	rawSize := binary.LittleEndian.Uint32(payload[1:frameHeaderSize])
	body := payload[frameHeaderSize:]

	if rawSize > MaxRawSize {
		return bqsp.Pack{}, errors.Wrapf(ErrTooLarge, "%d bytes", rawSize)
	}

	var data bqsp.Data
	switch alg {
	case AlgorithmNone:
		if len(body) != int(rawSize) {
			return bqsp.Pack{}, errors.Wrapf(ErrSizeMismatch, "got %d bytes, want %d", len(body), rawSize)
		}
		if p.Data().IsOwned() {
			data = bqsp.Own(body)
		} else {
			data = bqsp.Borrow(body)
		}
	case AlgorithmLZ4:
		raw, err := decompressLZ4(body, int(rawSize))
		if err != nil {
			return bqsp.Pack{}, err
		}
		data = bqsp.Own(raw)
	case AlgorithmZstd:
		raw, err := decompressZstd(body, int(rawSize))
		if err != nil {
			return bqsp.Pack{}, err
		}
		data = bqsp.Own(raw)
	default:
		return bqsp.Pack{}, errors.Wrapf(ErrUnknownAlgorithm, "%d", uint8(alg))
	}

	header := p.Header()
	return bqsp.NewPack(data, header.DataType(), header.Queue()), nil
}

func compressBody(raw []byte, alg Algorithm) ([]byte, error) {
	switch alg {
	case AlgorithmNone:
		return raw, nil
	case AlgorithmLZ4:
		return compressLZ4(raw)
	case AlgorithmZstd:
		return compressZstd(raw)
	default:
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%d", uint8(alg))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, errors.Wrap(err, "compress: lz4")
	}

	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, rawSize int) ([]byte, error) {
	destination := make([]byte, rawSize)

	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "lz4: %v", err)
	}
	if read != rawSize {
		return nil, errors.Wrapf(ErrSizeMismatch, "lz4: got %d bytes, want %d", read, rawSize)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, rawSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, rawSize))
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "zstd: %v", err)
	}
	if len(result) != rawSize {
		return nil, errors.Wrapf(ErrSizeMismatch, "zstd: got %d bytes, want %d", len(result), rawSize)
	}
	return result, nil
}

// Serializer compresses the Pack produced by Inner.
type Serializer struct {
	Inner     bqsp.Serializer
	Algorithm Algorithm
}

// SerializeBox implements bqsp.Serializer. The Pack always owns its payload.
func (s Serializer) SerializeBox(dataType uint16, queue uint8) (bqsp.Pack, error) {
	p, err := s.Inner.SerializeBox(dataType, queue)
	if err != nil {
		return bqsp.Pack{}, err
	}
	return Compress(p, s.Algorithm)
}

// Deserialize decompresses p and interprets the result as a T.
// Errors from T's DeserializeBox are returned unchanged.
func Deserialize[T any, PT interface {
	*T
	bqsp.Deserializer
}](p bqsp.Pack) (bqsp.Des[T], error) {
	raw, err := Decompress(p)
	if err != nil {
		return bqsp.Des[T]{}, err
	}
	return bqsp.Deserialize[T, PT](raw)
}
