package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/danmuck/clangipc/internal/config"
	"github.com/danmuck/clangipc/internal/editor"
	"github.com/danmuck/clangipc/internal/logging"
	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/spf13/cobra"
)

type options struct {
	config    string
	addr      string
	transport string
	part      string
	logLevel  string
	token     string
	timeout   time.Duration
}

func (o *options) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.config, "config", "c", "", "TOML config shared with clangipcd")
	f.StringVarP(&o.addr, "addr", "a", "", "backend address (overrides listen from config)")
	f.StringVarP(&o.transport, "transport", "t", "", "tcp|websocket")
	f.StringVar(&o.token, "token", "", "bearer token for a websocket backend")
	f.StringVar(&o.part, "project-part", "", "project part id sent with the file")
	f.StringVar(&o.logLevel, "log-level", "warn", "trace|debug|info|warn|error|disabled")
	f.DurationVar(&o.timeout, "timeout", 5*time.Second, "time to wait for each reply")
}

func (o *options) resolve() (config.Config, error) {
	cfg := config.Default()
	if o.config != "" {
		loaded, err := config.Load(o.config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if o.addr != "" {
		cfg.Listen = o.addr
	}
	if o.transport != "" {
		cfg.Transport = o.transport
	}
	if o.token != "" {
		cfg.AuthToken = o.token
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session opens a backend session and a context bounded by --timeout.
func (o *options) session(parent context.Context) (*editor.Session, context.Context, context.CancelFunc, error) {
	cfg, err := o.resolve()
	if err != nil {
		return nil, nil, nil, err
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(parent, o.timeout)
	s, err := editor.Open(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect %s: %w", cfg.Listen, err)
	}
	return s, ctx, func() {
		s.Close()
		cancel()
	}, nil
}

// container reads path from disk and ships it as unsaved content, so the
// backend need not share a filesystem with the client.
func (o *options) container(path string) (message.FileContainer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return message.FileContainer{}, err
	}
	return message.NewFileContainer(path, o.part, nil, 0).WithUnsavedContent(string(data)), nil
}

func parsePosition(lineArg, colArg string) (uint32, uint32, error) {
	line, err := strconv.ParseUint(lineArg, 10, 32)
	if err != nil || line == 0 {
		return 0, 0, fmt.Errorf("line must be a positive integer: %q", lineArg)
	}
	col, err := strconv.ParseUint(colArg, 10, 32)
	if err != nil || col == 0 {
		return 0, 0, fmt.Errorf("column must be a positive integer: %q", colArg)
	}
	return uint32(line), uint32(col), nil
}
