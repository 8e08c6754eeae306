package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/clangipc/internal/logging"
	"github.com/danmuck/clangipc/internal/protocol/frame"
	"github.com/danmuck/clangipc/internal/supervisor"
	"github.com/danmuck/clangipc/internal/transport"
)

// Config is shared by the backend daemon and the client tool. Listen is the
// daemon's bind address and the client's dial address.
type Config struct {
	Listen             string
	Transport          string
	WebsocketPath      string
	Limits             frame.Limits
	AdminListen        string
	LogLevel           string
	Backoff            supervisor.BackoffConfig
	MaxConnectAttempts int
	DialTimeout        time.Duration
	// AuthToken, when set, is required as a bearer token on the websocket endpoint.
	AuthToken string
}

func Default() Config {
	return Config{
		Listen:        "127.0.0.1:7400",
		Transport:     transport.KindTCP,
		WebsocketPath: "/ipc",
		Limits:        frame.DefaultLimits(),
		AdminListen:   "127.0.0.1:7401",
		LogLevel:      "info",
		Backoff:       supervisor.DefaultBackoff(),
		DialTimeout:   transport.DefaultDialTimeout,
	}
}

// fileConfig is the on-disk shape; durations are strings such as "250ms".
type fileConfig struct {
	Listen             string  `toml:"listen"`
	Transport          string  `toml:"transport"`
	WebsocketPath      string  `toml:"websocket_path"`
	MaxPayloadBytes    uint32  `toml:"max_payload_bytes"`
	AdminListen        string  `toml:"admin_listen"`
	LogLevel           string  `toml:"log_level"`
	BackoffInitial     string  `toml:"backoff_initial"`
	BackoffMax         string  `toml:"backoff_max"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	BackoffJitter      bool    `toml:"backoff_jitter"`
	MaxConnectAttempts int     `toml:"max_connect_attempts"`
	DialTimeout        string  `toml:"dial_timeout"`
	AuthToken          string  `toml:"auth_token"`
}

// Load applies the keys present in path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("websocket_path") {
		cfg.WebsocketPath = strings.TrimSpace(raw.WebsocketPath)
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("admin_listen") {
		cfg.AdminListen = strings.TrimSpace(raw.AdminListen)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("backoff_initial") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BackoffInitial))
		if err != nil {
			return Config{}, fmt.Errorf("parse backoff_initial: %w", err)
		}
		cfg.Backoff.InitialDelay = d
	}
	if meta.IsDefined("backoff_max") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BackoffMax))
		if err != nil {
			return Config{}, fmt.Errorf("parse backoff_max: %w", err)
		}
		cfg.Backoff.MaxDelay = d
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("config missing listen")
	}
	switch cfg.Transport {
	case transport.KindTCP:
	case transport.KindWebsocket:
		if !strings.HasPrefix(cfg.WebsocketPath, "/") {
			return fmt.Errorf("websocket_path must start with '/': %q", cfg.WebsocketPath)
		}
	default:
		return fmt.Errorf("%w: %q", transport.ErrUnknownTransport, cfg.Transport)
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		return fmt.Errorf("max_payload_bytes must be positive")
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return err
	}
	if cfg.MaxConnectAttempts < 0 {
		return fmt.Errorf("max_connect_attempts must not be negative")
	}
	return nil
}

func toFile(cfg Config) fileConfig {
	return fileConfig{
		Listen:             cfg.Listen,
		Transport:          cfg.Transport,
		WebsocketPath:      cfg.WebsocketPath,
		MaxPayloadBytes:    cfg.Limits.MaxPayloadBytes,
		AdminListen:        cfg.AdminListen,
		LogLevel:           cfg.LogLevel,
		BackoffInitial:     cfg.Backoff.InitialDelay.String(),
		BackoffMax:         cfg.Backoff.MaxDelay.String(),
		BackoffMultiplier:  cfg.Backoff.Multiplier,
		BackoffJitter:      cfg.Backoff.Jitter,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		DialTimeout:        cfg.DialTimeout.String(),
		AuthToken:          cfg.AuthToken,
	}
}
