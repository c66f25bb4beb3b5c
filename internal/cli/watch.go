package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"declimp/internal/driver/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-resolve the workspace whenever module files change",
		Long: `Run an initial resolution pass, then watch the workspace for module
file changes and run a fresh pass after each debounced batch. Resolved
state is never patched in place; every pass starts from an empty
engine so stale memoized results cannot survive an edit.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *ObservabilityServer
	if cfg.Metrics.Enabled {
		server = NewObservabilityServer(cfg.Metrics.Addr)
		if err := server.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Stop(shutdownCtx)
		}()
	}

	runPass := func() {
		rt, err := NewRuntime(cfg)
		if err != nil {
			slog.Error("runtime setup failed", "error", err)
			return
		}
		report, err := rt.Run(ctx)
		if err != nil {
			slog.Error("resolution pass failed", "error", err)
			return
		}
		for _, f := range report.Failures {
			slog.Warn("declaration failed", "declaration", f.Declaration, "error", f.Err)
		}
		if err := rt.Persist(ctx); err != nil {
			slog.Error("snapshot persist failed", "error", err)
		}
		if server != nil {
			server.RecordPass(report)
		}
	}

	runPass()

	w, err := watcher.New(cfg.Watch.Debounce, cfg.Workspace.ModuleSuffix,
		cfg.Workspace.ExcludeDirs, cfg.Workspace.ExcludeFiles,
		func(paths []string) {
			slog.Info("module files changed", "count", len(paths))
			runPass()
		})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Watch(cfg.Workspace.Root); err != nil {
		return err
	}

	slog.Info("watching workspace", "root", cfg.Workspace.Root)
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}
