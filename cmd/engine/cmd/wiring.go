package cmd

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/eventlog"
	"github.com/svidal-nlive/instrumental-dbo/internal/lockmgr"
	"github.com/svidal-nlive/instrumental-dbo/internal/media"
	"github.com/svidal-nlive/instrumental-dbo/internal/processor"
	"github.com/svidal-nlive/instrumental-dbo/internal/queue"
	"github.com/svidal-nlive/instrumental-dbo/internal/separator"
)

// buildConsumer assembles a queue.Consumer from cfg's declared queue
// roots, preserving their configured iteration order (§4.5).
func buildConsumer(cfg *config.Config) *queue.Consumer {
	roots := make(map[string]string, len(cfg.Queues))
	order := make([]string, 0, len(cfg.Queues))
	for _, q := range cfg.Queues {
		root := q.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(cfg.Paths.Incoming, root)
		}
		roots[q.Name] = root
		order = append(order, q.Name)
	}
	return queue.New(order, roots, cfg.Paths.Working, cfg.Paths.ArchiveDir, cfg.TmpSuffix)
}

// buildProcessor assembles a processor.Processor wired to the real
// media toolkit and separation adapter.
func buildProcessor(snapshot *config.Snapshot, logger zerolog.Logger) (*processor.Processor, error) {
	cfg := snapshot.Current()

	events, err := eventlog.Open(cfg.Paths.LogDir)
	if err != nil {
		return nil, fatalFSErrf("open event log: %w", err)
	}

	toolkit := media.NewToolkit("", "")
	sep := separator.NewAdapter("", "--model", cfg.Processing.Model)
	albumLock := lockmgr.NewAlbumLock(filepath.Join(cfg.Paths.Working, "locks", "albums"))

	return processor.New(snapshot, toolkit, sep, albumLock, events, logger), nil
}

// acquireSingleton takes the process singleton lock, mapping a
// held-by-another-process failure onto exit code 3 (§6.5).
func acquireSingleton(cfg *config.Config) (*lockmgr.SingletonLock, error) {
	lock := lockmgr.NewSingletonLock(filepath.Join(cfg.Paths.Working, "engine.lock"))
	if err := lock.Acquire(); err != nil {
		return nil, exitErrf(3, "acquire singleton lock: %w", err)
	}
	return lock, nil
}
