package main

import (
	"fmt"
	"os"

	"github.com/danmuck/clangipc/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logging.ConfigureRuntime()

	rootCmd := &cobra.Command{
		Use:   "clangipcd",
		Short: "Code-model backend serving editor clients over framed IPC",
		Long: `clangipcd accepts editor connections over TCP or websocket and answers
translation-unit, annotation, renaming and completion requests.

Examples:
  clangipcd serve
  clangipcd serve --config clangipcd.toml --listen 127.0.0.1:7500
  clangipcd config init clangipcd.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "clangipcd: %v\n", err)
		os.Exit(1)
	}
}
