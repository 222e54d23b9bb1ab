package bqsp

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no Box handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Conn carries Boxes over a TCP connection.
// Received Boxes are handed to the OnMessage callback; Boxes passed to the
// Write methods are queued and flushed by a dedicated write loop.
type Conn struct {
	rawConn *net.TCPConn
	reader  *bufio.Reader
	logger  Logger

	opts options

	sendBox chan Pack
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// Default configuration values.
const (
	// defaultBufferSize is the default size of the send channel buffer.
	defaultBufferSize = 1
	// defaultMaxDataSize is the default maximum payload size of a single Box (1MB).
	defaultMaxDataSize = 1024 * 1024
	// defaultHeartbeat is the default heartbeat interval.
	defaultHeartbeat = time.Second * 30
	// readBufferSize is the size of the buffered reader in front of the socket.
	readBufferSize = 64 * 1024
)

// NewConn creates a new connection wrapper around the given TCP connection.
// It applies the provided options and validates them before returning.
// Returns an error if the required onMessage option is missing.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxDataSize <= 0 {
		opts.maxDataSize = defaultMaxDataSize
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// newConnWithOptions creates a new Conn with the given options.
func newConnWithOptions(c *net.TCPConn, opts options) *Conn {
	return &Conn{
		rawConn: c,
		reader:  bufio.NewReaderSize(c, readBufferSize),
		logger:  opts.logger,
		opts:    opts,
		sendBox: make(chan Pack, opts.bufferSize),
	}
}

// Run starts the connection's read and write loops.
// It blocks until an error occurs or the context is canceled.
// The connection is closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"buffer_size", c.opts.bufferSize,
		"max_data_size", c.opts.maxDataSize,
		"heartbeat", c.opts.heartbeat)

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// A read blocked on the socket only returns once the socket is closed.
	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection.
// It cancels the context and closes the underlying TCP connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ErrBufferFull is returned when the send buffer is full and cannot accept more Boxes.
var ErrBufferFull = errors.New("send buffer full")

// Write queues a Pack for sending without blocking.
//
// The Pack is detached from any borrowed buffer before it is queued, so the
// caller may reuse its buffers as soon as Write returns.
//
// Returns:
//   - nil: the Pack was queued (not yet sent)
//   - ErrBufferFull: send buffer is full, the Pack was NOT queued
//   - ErrConnectionClosed: connection is closed
//   - ErrDataTooLarge: the payload exceeds the configured maximum
//
// For guaranteed delivery, use WriteBlocking or WriteTimeout instead.
func (c *Conn) Write(p Pack) error {
	p, err := c.prepare(p)
	if err != nil {
		return err
	}

	select {
	case c.sendBox <- p:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a Pack for sending, blocking until there is room in
// the send buffer or the context is canceled.
func (c *Conn) WriteBlocking(ctx context.Context, p Pack) error {
	p, err := c.prepare(p)
	if err != nil {
		return err
	}

	select {
	case c.sendBox <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a Pack for sending, waiting at most timeout for room
// in the send buffer. ErrBufferFull is returned when the timeout expires.
func (c *Conn) WriteTimeout(p Pack, timeout time.Duration) error {
	p, err := c.prepare(p)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendBox <- p:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

// Send serializes s and queues the result without blocking, like Write.
func (c *Conn) Send(s Serializer, dataType uint16, queue uint8) error {
	p, err := s.SerializeBox(dataType, queue)
	if err != nil {
		return err
	}
	return c.Write(p)
}

// prepare checks p against the connection limits and detaches it from
// the caller's buffers.
func (c *Conn) prepare(p Pack) (Pack, error) {
	if c.closed.Load() {
		return Pack{}, ErrConnectionClosed
	}

	if p.Overflowed() || p.Data().Len() > c.opts.maxDataSize {
		return Pack{}, ErrDataTooLarge
	}

	return p.ToOwned(), nil
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop reads Boxes from the connection and hands them to the onMessage callback.
// Returns when the context is canceled or an unrecoverable error occurs.
// Boxes declaring more than maxDataSize bytes fail with ErrDataTooLarge.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))

			pack, err := ReadPack(c.reader, c.opts.maxDataSize)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("read error", "addr", c.Addr(), "error", err)
				if c.opts.onError(err) == Disconnect {
					return err
				}
				continue
			}

			c.logger.Debug("box received", headerArgs(pack.Header(), "addr", c.Addr())...)

			if err = c.opts.onMessage(pack); err != nil {
				return err
			}
		}
	}
}

// writeLoop flushes queued Packs to the connection.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-c.sendBox:
			if err := c.write(p); err != nil {
				return err
			}
		}
	}
}

// write sends one Pack to the connection with a deadline.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Conn) write(p Pack) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))

	_, err := p.WriteTo(c.rawConn)

	if err != nil {
		c.logger.Debug("write error", headerArgs(p.Header(), "addr", c.Addr(), "error", err)...)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}
