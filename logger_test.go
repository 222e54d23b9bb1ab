package bqsp

import (
	"context"
	"log/slog"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}

	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

// mockLogger for testing Logger interface
type mockLogger struct {
	debugCalled bool
	infoCalled  bool
	warnCalled  bool
	errorCalled bool
	lastMsg     string
	lastArgs    []any
}

func (l *mockLogger) Debug(msg string, args ...any) {
	l.debugCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Info(msg string, args ...any) {
	l.infoCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.warnCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.errorCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func TestHeaderArgs(t *testing.T) {
	header := HeaderFromArray([HeaderSize]byte{4, 0, 0, 0, 1, 0, 5})

	args := headerArgs(header, "addr", "peer")
	want := []any{"data_size", uint32(4), "data_type", uint16(1), "queue", uint8(5), "addr", "peer"}

	if len(args) != len(want) {
		t.Fatalf("headerArgs() = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestConn_LogsThroughLogger(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	logger := &mockLogger{}
	conn, err := NewConn(serverConn,
		OnMessageOption(nopOnMessage),
		LoggerOption(logger),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	clientConn.Close()
	conn.Run(context.Background())

	if !logger.infoCalled {
		t.Error("Info not called")
	}
	if logger.lastMsg != "connection closed with error" {
		t.Errorf("lastMsg = %q, want 'connection closed with error'", logger.lastMsg)
	}
}
