package bqsp

import (
	"context"
	"io"
	"time"
)

// Pack is a Box in wire-ready form: a Header and the raw payload bytes
// it describes.
//
// A Pack is meant to be consumed once, either by writing it to a sink or
// by handing it to a Deserializer.
type Pack struct {
	header Header
	data   Data
}

// NewPack creates a Pack for data. The Header is derived from data so the
// two cannot disagree.
func NewPack(data Data, dataType uint16, queue uint8) Pack {
	return Pack{
		header: buildHeader(data, dataType, queue),
		data:   data,
	}
}

// Header returns the Header of the Pack.
func (p Pack) Header() Header {
	return p.header
}

// Data returns the payload of the Pack.
func (p Pack) Data() Data {
	return p.data
}

// Overflowed reports whether the Header under-reports the payload length,
// which happens when the payload was too long for the 32-bit size field.
// Such a Pack must not be written.
func (p Pack) Overflowed() bool {
	return uint64(p.data.Len()) != uint64(p.header.dataSize)
}

// ToOwned returns a Pack that no longer references any borrowed buffer.
func (p Pack) ToOwned() Pack {
	return Pack{
		header: p.header,
		data:   p.data.ToOwned(),
	}
}

// Bytes returns the wire encoding of the Pack: the Header followed by the
// payload.
func (p Pack) Bytes() []byte {
	packet := make([]byte, 0, HeaderSize+p.data.Len())
	packet = AppendHeader(packet, p.header)
	return append(packet, p.data.Bytes()...)
}

// WriteTo writes the Pack to w, blocking until w has accepted every byte.
// Errors from w are returned unchanged; nothing is retried.
func (p Pack) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// deadlineWriter is implemented by sinks such as net.Conn that can bound
// a pending write in time.
type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

// WriteContext writes the Pack to w without tying the caller to the sink.
// It returns once w has accepted every byte or ctx is done, whichever
// comes first. The bytes written are the same as WriteTo.
//
// When ctx ends first the write is abandoned: ctx.Err() is returned and
// no guarantee is made about how much of the Pack reached w. If w has a
// SetWriteDeadline method the context deadline is applied to it for the
// duration of the write and cleared once the write completes. An abandoned
// write is unblocked by moving the deadline to now; the caller must reset
// it before reusing w.
func (p Pack) WriteContext(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dw, hasDeadline := w.(deadlineWriter)
	deadlineSet := false
	if hasDeadline {
		if deadline, ok := ctx.Deadline(); ok {
			deadlineSet = dw.SetWriteDeadline(deadline) == nil
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.WriteTo(w)
		done <- err
	}()

	completed, err := awaitWrite(ctx, done)
	if !completed {
		if hasDeadline {
			_ = dw.SetWriteDeadline(time.Now())
		}
		return err
	}

	if deadlineSet {
		_ = dw.SetWriteDeadline(time.Time{})
	}
	return err
}

// awaitWrite waits for the write result on done or for ctx to end. A write
// that has already completed wins over a context that ended at the same time.
func awaitWrite(ctx context.Context, done <-chan error) (completed bool, err error) {
	select {
	case err := <-done:
		return true, err
	case <-ctx.Done():
		select {
		case err := <-done:
			return true, err
		default:
			return false, ctx.Err()
		}
	}
}
