package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/clangipc/internal/supervisor"
	"github.com/danmuck/clangipc/internal/testutil/testlog"
	"github.com/danmuck/clangipc/internal/transport"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExampleOverridesDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(filepath.Join("testdata", "ex.config.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7500" {
		t.Fatalf("unexpected listen: %q", cfg.Listen)
	}
	if cfg.Transport != transport.KindWebsocket || cfg.WebsocketPath != "/clang" {
		t.Fatalf("unexpected transport: %q %q", cfg.Transport, cfg.WebsocketPath)
	}
	if cfg.Limits.MaxPayloadBytes != 1<<20 {
		t.Fatalf("unexpected max payload: %d", cfg.Limits.MaxPayloadBytes)
	}
	if cfg.AdminListen != "127.0.0.1:7501" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected admin/log: %q %q", cfg.AdminListen, cfg.LogLevel)
	}
	if cfg.Backoff.InitialDelay != 100*time.Millisecond || cfg.Backoff.MaxDelay != 2*time.Second {
		t.Fatalf("unexpected backoff delays: %+v", cfg.Backoff)
	}
	if cfg.Backoff.Multiplier != 1.5 || cfg.Backoff.Jitter {
		t.Fatalf("unexpected backoff shape: %+v", cfg.Backoff)
	}
	if cfg.MaxConnectAttempts != 8 {
		t.Fatalf("unexpected max connect attempts: %d", cfg.MaxConnectAttempts)
	}
	if cfg.DialTimeout != transport.DefaultDialTimeout {
		t.Fatalf("dial timeout should keep its default: %v", cfg.DialTimeout)
	}
	if cfg.AuthToken != "editor-token" {
		t.Fatalf("unexpected auth token: %q", cfg.AuthToken)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults changed (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown transport": `transport = "pigeon"`,
		"bad duration":      `backoff_initial = "soon"`,
		"zero payload":      `max_payload_bytes = 0`,
		"bad log level":     `log_level = "loud"`,
		"low multiplier":    `backoff_multiplier = 0.5`,
		"unknown key":       `listen_addr = "x"`,
		"relative ws path":  "transport = \"websocket\"\nwebsocket_path = \"ipc\"",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := Load(writeConfig(t, `transport = "pigeon"`))
	if !errors.Is(err, transport.ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
	if _, err := Load(writeConfig(t, `backoff_multiplier = 0.5`)); !errors.Is(err, supervisor.ErrInvalidBackoff) {
		t.Fatalf("expected ErrInvalidBackoff, got %v", err)
	}
}

func TestTemplateRoundTripsThroughLoad(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("template does not reproduce defaults (-want +got):\n%s", diff)
	}
}
