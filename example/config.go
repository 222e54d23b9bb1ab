package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Zereker/bqsp/compress"
)

// config holds the echo example settings.
type config struct {
	Addr        string
	Queue       uint8
	MaxDataSize int
	Heartbeat   time.Duration
	Compression compress.Algorithm
	Debug       bool
}

func defaultConfig() config {
	return config{
		Addr:        "127.0.0.1:12345",
		MaxDataSize: 1024 * 1024,
		Heartbeat:   30 * time.Second,
		Compression: compress.AlgorithmNone,
	}
}

// echo.toml key mapping to config.
type fileConfig struct {
	Addr        string `toml:"addr"`
	Queue       int    `toml:"queue"`
	MaxDataSize int    `toml:"max_data_size"`
	Heartbeat   string `toml:"heartbeat"`
	Compression string `toml:"compression"`
	Debug       bool   `toml:"debug"`
}

// loadConfig overlays the keys present in the TOML file at path on the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load echo config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load echo config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("queue") {
		if raw.Queue < 0 || raw.Queue > 255 {
			return config{}, fmt.Errorf("load echo config: queue %d out of range 0-255", raw.Queue)
		}
		cfg.Queue = uint8(raw.Queue)
	}
	if meta.IsDefined("max_data_size") {
		cfg.MaxDataSize = raw.MaxDataSize
	}
	if meta.IsDefined("heartbeat") {
		heartbeat, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return config{}, fmt.Errorf("load echo config: heartbeat: %w", err)
		}
		cfg.Heartbeat = heartbeat
	}
	if meta.IsDefined("compression") {
		alg, err := compress.ParseAlgorithm(strings.TrimSpace(raw.Compression))
		if err != nil {
			return config{}, fmt.Errorf("load echo config: %w", err)
		}
		cfg.Compression = alg
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	if cfg.Addr == "" {
		return config{}, fmt.Errorf("load echo config: addr is required")
	}

	return cfg, nil
}
