package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/eventlog"
	"github.com/svidal-nlive/instrumental-dbo/internal/syncrouter"
)

var syncOnceCmd = &cobra.Command{
	Use:   "sync-once <manifest.json>",
	Short: "Sync the artifacts of one manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Logging)

		events, err := eventlog.Open(cfg.Paths.LogDir)
		if err != nil {
			return fatalFSErrf("open event log: %w", err)
		}

		ctx := context.Background()
		backend, err := syncrouter.NewBackend(ctx, cfg.Sync, cfg.Secrets)
		if err != nil {
			return exitErrf(2, "build sync backend: %w", err)
		}

		router := syncrouter.New(config.NewSnapshot(cfg), backend, events, logger)
		router.SyncManifest(ctx, cfg, args[0])
		fmt.Println("sync complete:", args[0])
		return nil
	},
}
