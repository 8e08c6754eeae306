package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/clangipc/internal/config"
	"github.com/danmuck/clangipc/internal/logging"
	"github.com/danmuck/clangipc/internal/node"
	"github.com/danmuck/clangipc/internal/observability"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	config    string
	listen    string
	transport string
	admin     string
	logLevel  string
}

func serveCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "", "TOML config file (defaults are used when empty)")
	cmd.Flags().StringVarP(&f.listen, "listen", "l", "", "IPC listen address")
	cmd.Flags().StringVarP(&f.transport, "transport", "t", "", "IPC transport: tcp|websocket")
	cmd.Flags().StringVar(&f.admin, "admin", "", "admin listen address, \"off\" disables it")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "trace|debug|info|warn|error|disabled")

	return cmd
}

// resolveConfig loads the file named by --config and applies the flags that were set.
func resolveConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		loaded, err := config.Load(f.config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = f.listen
	}
	if flags.Changed("transport") {
		cfg.Transport = f.transport
	}
	if flags.Changed("admin") {
		cfg.AdminListen = f.admin
		if f.admin == "off" {
			cfg.AdminListen = ""
		}
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	if !logging.SetLevel(cfg.LogLevel) {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	observability.RegisterMetrics()

	n, err := node.New(cfg, version)
	if err != nil {
		return err
	}
	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
