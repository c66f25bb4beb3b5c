// Package cli implements the declimp command line interface.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"declimp/internal/core/config"
	"declimp/internal/shared/observability"
)

var (
	flagConfig  string
	flagVerbose bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "declimp",
	Short: "Lazy declaration-level symbol resolution and dependency tracking",
	Long: `declimp resolves symbol references inside declarations lazily and
records, per declaration, which modules it depends on and why.

It provides commands to:
  - Resolve every declaration in a workspace and report outcomes
  - Print one declaration's ordered dependency sequence
  - Render the declaration graph as DOT, mermaid or TSV
  - Watch the workspace and re-resolve on change
  - Browse declarations interactively`,
	PersistentPreRunE: initializeGlobals,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "./declimp.toml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newDepsCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newUICmd())
}

// initializeGlobals sets up logging and loads configuration for every
// subcommand.
func initializeGlobals(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	out := os.Stdout
	if cmd.Name() == "ui" {
		// In UI mode stdout belongs to the TUI.
		out = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))

	loaded, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	cfg = loaded

	if cfg.Trace.Enabled {
		provider, err := observability.InitTracing(cmd.Context(), observability.TracingConfig{
			ServiceVersion: version,
			OTLPEndpoint:   cfg.Trace.Endpoint,
			SampleRate:     cfg.Trace.SampleRate,
		})
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			tracerProvider = provider
		}
	}
	return nil
}

const version = "1.0.0"

var tracerProvider *observability.TracerProvider

func shutdownTracing(ctx context.Context) {
	if err := tracerProvider.Shutdown(ctx); err != nil {
		slog.Warn("tracer shutdown", "error", err)
	}
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	shutdownTracing(context.Background())
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
