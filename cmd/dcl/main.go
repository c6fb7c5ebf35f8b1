package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dclbond/internal/dclctl"
	"dclbond/internal/dcld"
	"dclbond/internal/logger"
)

// Version is injected by build scripts via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logEnv   string
		logLevel string
	)
	root := &cobra.Command{
		Use:   "dcl",
		Short: "Dynamic conversion/leverage bond simulator",
		Long: `dcl replays a dynamic conversion/leverage contingent-convertible bond against
an issuer's market data, applying debt top-ups and share issuance whenever
leverage leaves its band at a rebalancing date.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// serve initializes from its service config instead
			if cmd.Name() != "serve" {
				logger.Init(logEnv, logLevel)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&logEnv, "log-env", "development", "log encoding: production (JSON) or development")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(dclctl.Commands()...)
	root.AddCommand(dcld.Command())
	return root
}
