// ════════════════════════════════════════════════════════════════════════════════════════════════
// Coherency Simulator - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Cache Coherency Protocol Simulator
// Component: Command Surface & Replay Orchestration
//
// Description:
//   cohsim replays memory access traces through the coherency monitor, one
//   pinned proxy per simulated CPU, and stores what it saw.
//
// Commands:
//   - replay: trace → proxies → monitor → stats, detections, report row set
//   - synth: write a synthetic trace with a chosen sharing pattern
//   - protocols: print the transition tables
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	Config   string
	LogLevel string
	LogFile  string
}

var flags globalFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cohsim",
		Short: "Cache coherency protocol simulator",
		Long: `cohsim simulates MESI, MOESI and MESIF coherency over a direct-mapped
line table, detects false sharing and reports what a trace did to the cache.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.Config, "config", "c", "", "JSON config file overlaid on defaults")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&flags.LogFile, "log-file", "", "also write JSON logs to this rotated file")

	root.AddCommand(newReplayCmd())
	root.AddCommand(newSynthCmd())
	root.AddCommand(newProtocolsCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cohsim: %v\n", err)
		stop()
		os.Exit(1)
	}
}
