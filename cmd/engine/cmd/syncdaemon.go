package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/eventlog"
	"github.com/svidal-nlive/instrumental-dbo/internal/syncrouter"
)

var syncDaemonCmd = &cobra.Command{
	Use:   "sync-daemon",
	Short: "Run the Sync Router loop",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Logging)

		events, err := eventlog.Open(cfg.Paths.LogDir)
		if err != nil {
			return fatalFSErrf("open event log: %w", err)
		}

		backend, err := syncrouter.NewBackend(context.Background(), cfg.Sync, cfg.Secrets)
		if err != nil {
			return exitErrf(2, "build sync backend: %w", err)
		}

		router := syncrouter.New(config.NewSnapshot(cfg), backend, events, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}
