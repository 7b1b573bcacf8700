// Package syncrouter implements the Sync Router (C8): a poll-driven
// loop that discovers newly published manifests under OUTPUTS_DIR,
// matches each artifact against a declared route table, and dispatches
// it to a pluggable backend (local/rsync/s3/scp).
package syncrouter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/eventlog"
	"github.com/svidal-nlive/instrumental-dbo/internal/manifest"
)

// Backend delivers one artifact file to a destination root, per §4.8.
// Backends never interpret the route table; Router resolves the final
// destination path before calling Send.
type Backend interface {
	Send(ctx context.Context, localPath, destPath string) error
}

// remoteRootPattern matches "${remoteRoots.KEY}" placeholders in a
// route's "to" template (§4.8 step 3).
var remoteRootPattern = regexp.MustCompile(`\$\{remoteRoots\.([A-Za-z0-9_-]+)\}`)

// Router polls OUTPUTS_DIR for manifests, routes each artifact, and
// dispatches it through a backend.
type Router struct {
	cfg        *config.Snapshot
	backend    Backend
	events     *eventlog.Log
	logger     zerolog.Logger
	now        func() time.Time
	mu         sync.Mutex
	processed  map[string]bool // job_id -> already handled this session
	failed     map[string]bool // job_id -> permanently failed (SyncFatal), never retried
}

// New constructs a Router bound to one backend.
func New(cfg *config.Snapshot, backend Backend, events *eventlog.Log, logger zerolog.Logger) *Router {
	return &Router{
		cfg:       cfg,
		backend:   backend,
		events:    events,
		logger:    logger.With().Str("component", "sync_router").Logger(),
		now:       time.Now,
		processed: map[string]bool{},
		failed:    map[string]bool{},
	}
}

// Run polls on the configured interval until ctx is cancelled, per
// §4.8: ticker-driven discovery, no dependence on filesystem notify
// APIs.
func (r *Router) Run(ctx context.Context) error {
	syncCfg := r.cfg.Current().Sync
	ticker := time.NewTicker(syncCfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.PollOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce scans OUTPUTS_DIR once for manifests not yet handled this
// session and routes each one.
func (r *Router) PollOnce(ctx context.Context) error {
	cfg := r.cfg.Current()
	entries, err := os.ReadDir(cfg.Paths.OutputsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("syncrouter: read outputs dir: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		jobID := e.Name()

		r.mu.Lock()
		done := r.processed[jobID] || r.failed[jobID]
		r.mu.Unlock()
		if done {
			continue
		}

		path := filepath.Join(cfg.Paths.OutputsDir, jobID, "manifest.json")
		if _, statErr := os.Stat(path); statErr != nil {
			continue // not yet published, or no manifest for this entry
		}

		r.SyncManifest(ctx, cfg, path)
	}
	return nil
}

// SyncManifest routes every artifact in the manifest at path, per
// §4.8 steps 1-4.
func (r *Router) SyncManifest(ctx context.Context, cfg *config.Config, path string) {
	m, err := manifest.Load(path)
	if err != nil {
		jobID := filepath.Base(filepath.Dir(path))
		r.emit(eventlog.EventSyncFailed, map[string]any{"job_id": jobID, "reason": "invalid_manifest", "error": err.Error()})
		r.markFailed(jobID)
		return
	}
	if err := m.Validate(); err != nil {
		r.emit(eventlog.EventSyncFailed, map[string]any{"job_id": m.JobID, "reason": "invalid_manifest", "error": err.Error()})
		r.markFailed(m.JobID)
		return
	}

	jobDir := filepath.Dir(path)
	allOK := true
	fatal := false
	for _, artifact := range m.Artifacts {
		route, ok := MatchRoute(cfg.Sync.Routes, string(artifact.Kind), artifact.Variant)
		if !ok {
			// No declared route for this artifact. §4.8 step 6: honor
			// SkipOnMissingRemote the same way a missing backend
			// destination is honored; otherwise this manifest can never
			// fully sync, so it's SyncFatal and dropped from retry.
			if cfg.Sync.SkipOnMissingRemote {
				r.emit(eventlog.EventSyncSkipped, map[string]any{"job_id": m.JobID, "artifact": artifact.Path, "reason": "no_route"})
				continue
			}
			allOK = false
			fatal = true
			r.emit(eventlog.EventSyncFailed, map[string]any{"job_id": m.JobID, "artifact": artifact.Path, "reason": "no_route"})
			continue
		}

		destRoot, err := resolveDest(route.To, cfg.Sync.RemoteRoots)
		if err != nil {
			// A misconfigured remote root won't resolve on a later poll
			// either, so this is SyncFatal rather than transient.
			allOK = false
			fatal = true
			r.emit(eventlog.EventSyncFailed, map[string]any{
				"job_id": m.JobID, "artifact": artifact.Path, "error": err.Error(),
			})
			continue
		}

		localPath := filepath.Join(jobDir, artifact.Path)
		destPath := filepath.Join(destRoot, filepath.Base(artifact.Path))

		if cfg.Sync.DryRun {
			r.emit(eventlog.EventSyncSuccess, map[string]any{"job_id": m.JobID, "artifact": artifact.Path, "dest": destPath, "dry_run": true})
			continue
		}

		err = r.backend.Send(ctx, localPath, destPath)
		switch {
		case err == nil:
			r.emit(eventlog.EventSyncSuccess, map[string]any{"job_id": m.JobID, "artifact": artifact.Path, "dest": destPath})
		case cfg.Sync.SkipOnMissingRemote && os.IsNotExist(err):
			r.emit(eventlog.EventSyncSkipped, map[string]any{"job_id": m.JobID, "artifact": artifact.Path, "reason": "missing_remote"})
		default:
			allOK = false
			r.emit(eventlog.EventSyncFailed, map[string]any{"job_id": m.JobID, "artifact": artifact.Path, "error": err.Error()})
		}
	}

	// A job is only marked handled once every matched artifact has
	// succeeded or been explicitly skipped. A SyncFatal condition
	// (invalid manifest, no route for a required artifact, unresolvable
	// remote root) drops it from the retry set permanently; any other
	// failure is SyncTransient and leaves it eligible for retry on the
	// next poll (§4.8 step 5).
	switch {
	case fatal:
		r.markFailed(m.JobID)
	case allOK:
		r.mu.Lock()
		r.processed[m.JobID] = true
		r.mu.Unlock()
	}
}

// markFailed permanently removes jobID from the retry set, per
// SyncFatal semantics (§4.8 step 6).
func (r *Router) markFailed(jobID string) {
	r.mu.Lock()
	r.failed[jobID] = true
	r.mu.Unlock()
}

// MatchRoute finds the first route whose Kind/Variant match (an empty
// field in the route matches anything), per §4.8 step 2.
func MatchRoute(routes []config.Route, kind, variant string) (*config.Route, bool) {
	for i := range routes {
		route := &routes[i]
		if route.Kind != "" && route.Kind != kind {
			continue
		}
		if route.Variant != "" && route.Variant != variant {
			continue
		}
		return route, true
	}
	return nil, false
}

func (r *Router) emit(event string, fields map[string]any) {
	if err := r.events.Emit(r.now(), event, fields); err != nil {
		r.logger.Warn().Err(err).Str("event", event).Msg("failed to emit sync event")
	}
}

// resolveDest substitutes every "${remoteRoots.KEY}" placeholder in to
// with its configured value, per §4.8 step 3.
func resolveDest(to string, remoteRoots map[string]string) (string, error) {
	var missing string
	resolved := remoteRootPattern.ReplaceAllStringFunc(to, func(match string) string {
		key := remoteRootPattern.FindStringSubmatch(match)[1]
		val, ok := remoteRoots[key]
		if !ok {
			missing = key
			return match
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("syncrouter: remote root %q is not configured", missing)
	}
	return resolved, nil
}
