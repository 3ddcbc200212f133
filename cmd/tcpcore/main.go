package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 构建时注入
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tcpcore",
		Short: "Minimal single-threaded TCP server core",
		Long: `tcpcore runs a readiness-driven TCP dispatcher on one goroutine.

Commands:
  serve        run the greeting or chat server on the dispatcher
  connect      connect, read the greeting and send one message
  accept-once  accept a single client without the dispatcher
  transcript   print a recorded session transcript`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		serveCmd(),
		connectCmd(),
		acceptOnceCmd(),
		transcriptCmd(),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
