package bqsp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes the Boxes received by a Server.
type Handler interface {
	// ServeBox is called for every Pack read from conn, in arrival order.
	// Returning an error closes the connection.
	ServeBox(conn *Conn, p Pack) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(conn *Conn, p Pack) error

// ServeBox calls f(conn, p).
func (f HandlerFunc) ServeBox(conn *Conn, p Pack) error {
	return f(conn, p)
}

// Server accepts TCP connections and serves Boxes on each of them.
type Server struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration
	connOpts        []Option

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server and, unless overridden
// by ServerConnOption, for its connections.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server will wait up to this duration
// before closing the listener. Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// ServerConnOption sets the options applied to every accepted connection.
// OnMessageOption is reserved by the server and is overridden.
func ServerConnOption(opts ...Option) ServerOption {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// New creates a new TCP server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:    listener,
		logger:      slog.Default(),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts connections and dispatches their Boxes to handler.
// It blocks until the context is canceled or accepting fails. Before it
// returns, the connections it started are canceled and waited for.
// If ServerShutdownTimeoutOption is set, the server keeps accepting and
// serving for up to the specified duration after the context is canceled.
// Call Close() to bypass the timeout and shut down immediately.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()

		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	connCtx, cancelConns := context.WithCancel(context.WithoutCancel(ctx))
	var conns errgroup.Group
	defer func() {
		cancelConns()
		_ = conns.Wait()
	}()

	for {
		tcpConn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", tcpConn.RemoteAddr())
		_ = tcpConn.SetNoDelay(true)

		conn, err := s.newConn(tcpConn, handler)
		if err != nil {
			s.logger.Error("connection setup failed", "remote_addr", tcpConn.RemoteAddr(), "error", err)
			tcpConn.Close()
			continue
		}

		conns.Go(func() error {
			// Connection errors stay with the connection; Run logs them.
			_ = conn.Run(connCtx)
			return nil
		})
	}
}

// newConn wraps an accepted connection so its Boxes reach handler.
func (s *Server) newConn(tcpConn *net.TCPConn, handler Handler) (*Conn, error) {
	var conn *Conn

	opts := make([]Option, 0, len(s.connOpts)+2)
	opts = append(opts, LoggerOption(s.logger))
	opts = append(opts, s.connOpts...)
	opts = append(opts, OnMessageOption(func(p Pack) error {
		return handler.ServeBox(conn, p)
	}))

	conn, err := NewConn(tcpConn, opts...)
	return conn, err
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
// Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
