// Command example runs a Box echo server, or with --send, a client that
// sends one Message box and prints the reply.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Zereker/bqsp"
	"github.com/Zereker/bqsp/compress"
	"github.com/Zereker/bqsp/schema"
)

type options struct {
	config config
	send   string
}

func parseFlags(args []string) (options, error) {
	flagSet := pflag.NewFlagSet("example", pflag.ContinueOnError)

	configPath := flagSet.String("config", "", "path to a TOML config file")
	addr := flagSet.String("addr", "", "listen or dial address")
	send := flagSet.String("send", "", "send this text as a Message box and print the reply")
	compression := flagSet.String("compression", "", "payload compression: none, lz4 or zstd")
	queue := flagSet.Uint8("queue", 0, "queue number for sent boxes")
	debug := flagSet.Bool("debug", false, "enable debug logging")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			return options{}, err
		}
		cfg = loaded
	}

	if flagSet.Changed("addr") {
		cfg.Addr = *addr
	}
	if flagSet.Changed("compression") {
		alg, err := compress.ParseAlgorithm(*compression)
		if err != nil {
			return options{}, err
		}
		cfg.Compression = alg
	}
	if flagSet.Changed("queue") {
		cfg.Queue = *queue
	}
	if flagSet.Changed("debug") {
		cfg.Debug = *debug
	}

	return options{config: cfg, send: *send}, nil
}

// encode builds the Pack for payload, compressed when the config asks for it.
func encode(cfg config, payload schema.Payload) (bqsp.Pack, error) {
	if cfg.Compression == compress.AlgorithmNone {
		return payload.Box(cfg.Queue)
	}
	return compress.Serializer{Inner: payload, Algorithm: cfg.Compression}.SerializeBox(uint16(payload.Kind), cfg.Queue)
}

func decode(cfg config, p bqsp.Pack) (bqsp.Des[schema.Payload], error) {
	if cfg.Compression == compress.AlgorithmNone {
		return bqsp.Deserialize[schema.Payload](p)
	}
	return compress.Deserialize[schema.Payload](p)
}

func newServer(cfg config, logger *slog.Logger) (*bqsp.Server, error) {
	addr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	return bqsp.New(addr,
		bqsp.ServerLoggerOption(logger),
		bqsp.ServerShutdownTimeoutOption(time.Second),
		bqsp.ServerConnOption(
			bqsp.MessageMaxSize(cfg.MaxDataSize),
			bqsp.HeartbeatOption(cfg.Heartbeat),
			bqsp.OnErrorOption(func(err error) bqsp.ErrorAction {
				logger.Warn("connection error", "error", err)
				return bqsp.Disconnect
			}),
		),
	)
}

func echoHandler(cfg config, logger *slog.Logger) bqsp.Handler {
	return bqsp.HandlerFunc(func(conn *bqsp.Conn, p bqsp.Pack) error {
		des, err := decode(cfg, p)
		if err != nil {
			logger.Warn("undecodable box", "remote_addr", conn.Addr(), "error", err)
		} else {
			logger.Info("box received", "remote_addr", conn.Addr(), "kind", des.Value.Kind, "payload", des.Value.String())
		}
		return conn.Write(p)
	})
}

func send(ctx context.Context, cfg config, text string) (schema.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return schema.Payload{}, err
	}
	defer conn.Close()

	p, err := encode(cfg, schema.Message(text))
	if err != nil {
		return schema.Payload{}, err
	}
	if err := p.WriteContext(ctx, conn); err != nil {
		return schema.Payload{}, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	reply, err := bqsp.ReadPack(conn, cfg.MaxDataSize)
	if err != nil {
		return schema.Payload{}, err
	}

	des, err := decode(cfg, reply)
	if err != nil {
		return schema.Payload{}, err
	}
	return des.Value, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err == pflag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.config.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.send != "" {
		reply, err := send(ctx, opts.config, opts.send)
		if err != nil {
			logger.Error("send failed", "addr", opts.config.Addr, "error", err)
			os.Exit(1)
		}
		fmt.Println(reply)
		return
	}

	server, err := newServer(opts.config, logger)
	if err != nil {
		logger.Error("listen failed", "addr", opts.config.Addr, "error", err)
		os.Exit(1)
	}

	if err := server.Serve(ctx, echoHandler(opts.config, logger)); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
