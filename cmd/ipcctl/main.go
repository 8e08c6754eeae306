package main

import (
	"fmt"
	"os"

	"github.com/danmuck/clangipc/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ipcctl: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:   "ipcctl",
		Short: "Editor-side client for clangipcd",
		Long: `ipcctl connects to a running clangipcd and issues one request.
Line and column arguments are one-based.

Examples:
  ipcctl ping
  ipcctl annotate src/main.cpp
  ipcctl rename src/main.cpp 12 7
  ipcctl complete --addr 127.0.0.1:7500 src/main.cpp 30 4`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(root)

	root.AddCommand(
		pingCmd(&opts),
		annotateCmd(&opts),
		renameCmd(&opts),
		completeCmd(&opts),
	)
	return root
}
