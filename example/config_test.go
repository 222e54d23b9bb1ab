package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zereker/bqsp/compress"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg != defaultConfig() {
		t.Fatalf("config = %+v, want defaults %+v", cfg, defaultConfig())
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
addr = "0.0.0.0:9000"
queue = 7
max_data_size = 4096
heartbeat = "5s"
compression = "zstd"
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Queue != 7 {
		t.Fatalf("queue = %d", cfg.Queue)
	}
	if cfg.MaxDataSize != 4096 {
		t.Fatalf("max_data_size = %d", cfg.MaxDataSize)
	}
	if cfg.Heartbeat != 5*time.Second {
		t.Fatalf("heartbeat = %v", cfg.Heartbeat)
	}
	if cfg.Compression != compress.AlgorithmZstd {
		t.Fatalf("compression = %v", cfg.Compression)
	}
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `queue = 3`))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	want := defaultConfig()
	want.Queue = 3
	if cfg != want {
		t.Fatalf("config = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := map[string]string{
		"bad heartbeat":   `heartbeat = "soon"`,
		"bad compression": `compression = "brotli"`,
		"queue too large": `queue = 300`,
		"negative queue":  `queue = -1`,
		"empty addr":      `addr = " "`,
		"unknown key":     `port = 80`,
		"not toml":        `addr = `,
	}

	for name, body := range tests {
		if _, err := loadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseFlags_OverrideConfig(t *testing.T) {
	path := writeConfig(t, `
addr = "127.0.0.1:9000"
compression = "lz4"
queue = 2
`)

	opts, err := parseFlags([]string{"--config", path, "--addr", "127.0.0.1:9100", "--queue", "5", "--send", "hi"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if opts.config.Addr != "127.0.0.1:9100" {
		t.Fatalf("addr = %q", opts.config.Addr)
	}
	if opts.config.Queue != 5 {
		t.Fatalf("queue = %d", opts.config.Queue)
	}
	if opts.config.Compression != compress.AlgorithmLZ4 {
		t.Fatalf("compression = %v, want lz4 from file", opts.config.Compression)
	}
	if opts.send != "hi" {
		t.Fatalf("send = %q", opts.send)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	if _, err := parseFlags([]string{"--compression", "gzip"}); err == nil {
		t.Error("unknown compression: expected error")
	}
	if _, err := parseFlags([]string{"--queue", "256"}); err == nil {
		t.Error("queue out of range: expected error")
	}
	if _, err := parseFlags([]string{"--nope"}); err == nil {
		t.Error("unknown flag: expected error")
	}
}
