package syncrouter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/eventlog"
	"github.com/svidal-nlive/instrumental-dbo/internal/manifest"
)

// fakeBackend records every Send call; errFor lets a test simulate a
// failure for one specific destPath.
type fakeBackend struct {
	sent   []string
	errFor map[string]error
}

func (b *fakeBackend) Send(_ context.Context, localPath, destPath string) error {
	if err, ok := b.errFor[destPath]; ok {
		return err
	}
	b.sent = append(b.sent, localPath+" -> "+destPath)
	return nil
}

func TestMatchRoute_FirstMatchWinsWithWildcards(t *testing.T) {
	routes := []config.Route{
		{Kind: "audio", Variant: "instrumental", To: "${remoteRoots.archive}/instrumentals"},
		{Kind: "audio", To: "${remoteRoots.archive}/audio"},
		{To: "${remoteRoots.archive}/everything"},
	}

	route, ok := MatchRoute(routes, "audio", "instrumental")
	require.True(t, ok)
	assert.Equal(t, "${remoteRoots.archive}/instrumentals", route.To)

	route, ok = MatchRoute(routes, "audio", "no_drums")
	require.True(t, ok)
	assert.Equal(t, "${remoteRoots.archive}/audio", route.To)

	route, ok = MatchRoute(routes, "cover", "")
	require.True(t, ok)
	assert.Equal(t, "${remoteRoots.archive}/everything", route.To)
}

func TestMatchRoute_NoMatch(t *testing.T) {
	routes := []config.Route{{Kind: "audio", To: "x"}}
	_, ok := MatchRoute(routes, "stem", "")
	assert.False(t, ok)
}

func TestResolveDest_SubstitutesRemoteRoot(t *testing.T) {
	roots := map[string]string{"archive": "/mnt/archive"}
	dest, err := resolveDest("${remoteRoots.archive}/audio", roots)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/archive/audio", dest)
}

func TestResolveDest_MissingRemoteRootErrors(t *testing.T) {
	_, err := resolveDest("${remoteRoots.missing}/x", map[string]string{})
	assert.Error(t, err)
}

func newTestRouter(t *testing.T, cfg *config.Config, backend Backend) *Router {
	t.Helper()
	events, err := eventlog.Open(cfg.Paths.LogDir)
	require.NoError(t, err)
	return New(config.NewSnapshot(cfg), backend, events, zerolog.Nop())
}

func writeFixtureManifest(t *testing.T, outputsDir, jobID string) string {
	t.Helper()
	jobDir := filepath.Join(outputsDir, jobID)
	require.NoError(t, os.MkdirAll(filepath.Join(jobDir, "files"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "files", "instrumental.mp3"), []byte("x"), 0o640))

	m, err := manifest.Build(manifest.Job{JobID: jobID, SourceType: "audio_album", Artist: "A", Album: "B", Title: "C"},
		outputsDir,
		[]manifest.Artifact{{Kind: manifest.KindAudio, Variant: "instrumental", Path: "files/instrumental.mp3"}},
		true, false, time.Now())
	require.NoError(t, err)

	data, err := m.Encode()
	require.NoError(t, err)
	path := filepath.Join(jobDir, "manifest.json")
	require.NoError(t, os.WriteFile(path, data, 0o640))
	return path
}

func TestSyncManifest_RoutesMatchedArtifactsAndMarksProcessed(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.Paths{OutputsDir: filepath.Join(root, "outputs"), LogDir: filepath.Join(root, "logs")},
		Sync: config.SyncConfig{
			Routes:      []config.Route{{Kind: "audio", To: "${remoteRoots.archive}"}},
			RemoteRoots: map[string]string{"archive": filepath.Join(root, "remote")},
		},
	}
	path := writeFixtureManifest(t, cfg.Paths.OutputsDir, "job-1")

	backend := &fakeBackend{}
	r := newTestRouter(t, cfg, backend)
	r.SyncManifest(context.Background(), cfg, path)

	require.Len(t, backend.sent, 1)
	assert.True(t, r.processed["job-1"])
}

func TestSyncManifest_InvalidManifestIsSkipped(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.Paths{OutputsDir: filepath.Join(root, "outputs"), LogDir: filepath.Join(root, "logs")},
		Sync:  config.SyncConfig{},
	}
	path := filepath.Join(root, "outputs", "job-2", "manifest.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o640))

	backend := &fakeBackend{}
	r := newTestRouter(t, cfg, backend)
	r.SyncManifest(context.Background(), cfg, path)

	assert.Empty(t, backend.sent)
	assert.False(t, r.processed["job-2"])
}

func TestSyncManifest_NoMatchingRoute_SkipOnMissingRemoteEmitsSkipped(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.Paths{OutputsDir: filepath.Join(root, "outputs"), LogDir: filepath.Join(root, "logs")},
		Sync: config.SyncConfig{
			Routes:              []config.Route{{Kind: "stem", To: "${remoteRoots.archive}"}}, // never matches our audio artifact
			RemoteRoots:         map[string]string{"archive": filepath.Join(root, "remote")},
			SkipOnMissingRemote: true,
		},
	}
	path := writeFixtureManifest(t, cfg.Paths.OutputsDir, "job-4")

	backend := &fakeBackend{}
	r := newTestRouter(t, cfg, backend)
	r.SyncManifest(context.Background(), cfg, path)

	assert.Empty(t, backend.sent)
	assert.True(t, r.processed["job-4"])
	assert.False(t, r.failed["job-4"])
}

func TestSyncManifest_NoMatchingRoute_DefaultModeFailsAndDropsFromRetry(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.Paths{OutputsDir: filepath.Join(root, "outputs"), LogDir: filepath.Join(root, "logs")},
		Sync: config.SyncConfig{
			Routes:      []config.Route{{Kind: "stem", To: "${remoteRoots.archive}"}}, // never matches
			RemoteRoots: map[string]string{"archive": filepath.Join(root, "remote")},
		},
	}
	path := writeFixtureManifest(t, cfg.Paths.OutputsDir, "job-5")

	backend := &fakeBackend{}
	r := newTestRouter(t, cfg, backend)
	r.SyncManifest(context.Background(), cfg, path)

	assert.Empty(t, backend.sent)
	assert.False(t, r.processed["job-5"])
	assert.True(t, r.failed["job-5"])

	// A manifest dropped into the failed set must not be retried on a
	// later poll even though it was never marked processed.
	require.NoError(t, os.MkdirAll(cfg.Paths.OutputsDir, 0o750))
	err := r.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backend.sent)
}

func TestSyncManifest_BackendFailureLeavesJobUnmarkedForRetry(t *testing.T) {
	root := t.TempDir()
	remoteRoot := filepath.Join(root, "remote")
	cfg := &config.Config{
		Paths: config.Paths{OutputsDir: filepath.Join(root, "outputs"), LogDir: filepath.Join(root, "logs")},
		Sync: config.SyncConfig{
			Routes:      []config.Route{{Kind: "audio", To: "${remoteRoots.archive}"}},
			RemoteRoots: map[string]string{"archive": remoteRoot},
		},
	}
	path := writeFixtureManifest(t, cfg.Paths.OutputsDir, "job-3")

	destPath := filepath.Join(remoteRoot, "instrumental.mp3")
	backend := &fakeBackend{errFor: map[string]error{destPath: os.ErrPermission}}
	r := newTestRouter(t, cfg, backend)
	r.SyncManifest(context.Background(), cfg, path)

	assert.False(t, r.processed["job-3"])
}
