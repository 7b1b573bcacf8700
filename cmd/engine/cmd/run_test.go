package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svidal-nlive/instrumental-dbo/internal/bundle"
	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/eventlog"
	"github.com/svidal-nlive/instrumental-dbo/internal/lockmgr"
	"github.com/svidal-nlive/instrumental-dbo/internal/media"
	"github.com/svidal-nlive/instrumental-dbo/internal/processor"
	"github.com/svidal-nlive/instrumental-dbo/internal/queue"
	"github.com/svidal-nlive/instrumental-dbo/internal/separator"
)

// fakeToolkit stands in for media.Toolkit: every operation just
// materializes its declared output path.
type fakeToolkit struct{}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("x"), 0o640)
}

func (f *fakeToolkit) ProbeDuration(_ context.Context, _ string) (float64, error) { return 120, nil }
func (f *fakeToolkit) ExtractChunk(_ context.Context, _, out string, _, _ float64) error {
	return touch(out)
}
func (f *fakeToolkit) CrossfadeConcat(_ context.Context, _ []string, out string, _ int) error {
	return touch(out)
}
func (f *fakeToolkit) MixStems(_ context.Context, _ []string, out string) error { return touch(out) }
func (f *fakeToolkit) EncodeMP3(_ context.Context, _, out string, _ media.EncodeMode) error {
	return touch(out)
}
func (f *fakeToolkit) WriteTags(_ context.Context, _ string, _ media.TagSet, _ []byte) error {
	return nil
}
func (f *fakeToolkit) MuxVideo(_ context.Context, _, out string) error { return touch(out) }

// fakeSeparator always succeeds with a full stem set.
type fakeSeparator struct{}

func (f *fakeSeparator) Separate(_ context.Context, _, outDir string, _ time.Duration) (separator.Result, error) {
	names := []string{"vocals", "drums", "bass", "other"}
	stems := map[string]string{}
	for _, name := range names {
		path := filepath.Join(outDir, name+".wav")
		if err := touch(path); err != nil {
			return separator.Result{}, err
		}
		stems[name] = path
	}
	accompaniment := filepath.Join(outDir, "no_vocals.wav")
	if err := touch(accompaniment); err != nil {
		return separator.Result{}, err
	}
	return separator.Result{AccompanimentPath: accompaniment, Stems: stems}, nil
}

// writeJob materializes a minimal claimable bundle directory at dir,
// with every file under it stamped to mtime so Discover's ordering is
// deterministic.
func writeJob(t *testing.T, dir, jobID string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	b := bundle.Bundle{JobID: jobID, SourceType: "audio_album", Artist: "Artist", Album: "Album", Title: jobID, AudioPath: "track.wav"}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	jobPath := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(jobPath, data, 0o640))
	audioPath := filepath.Join(dir, "track.wav")
	require.NoError(t, touch(audioPath))
	require.NoError(t, os.Chtimes(jobPath, mtime, mtime))
	require.NoError(t, os.Chtimes(audioPath, mtime, mtime))
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
}

func newTestConsumerAndProcessor(t *testing.T, incomingRoot string) (*queue.Consumer, *processor.Processor) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.Paths{
			Working:    filepath.Join(root, "working"),
			OutputsDir: filepath.Join(root, "outputs"),
			ArchiveDir: filepath.Join(root, "archive"),
			Quarantine: filepath.Join(root, "quarantine"),
			LogDir:     filepath.Join(root, "logs"),
		},
		Processing: config.Processing{
			Model: "htdemucs", SampleRate: 44100, BitDepth: 16, MP3Encoding: "v0",
			ChunkingEnabled: true, ChunkSeconds: 300, ChunkOverlapSec: 5, CrossfadeMs: 500,
			ChunkMax: 20, TimeoutSec: 600, MaxRetries: 1, Timeout: time.Second,
			PreserveStems: true, Variants: []string{"instrumental"},
		},
		Recovery:  config.Recovery{CorruptDest: "archive"},
		TmpSuffix: ".tmp",
	}

	consumer := queue.New([]string{"incoming"}, map[string]string{"incoming": incomingRoot}, cfg.Paths.Working, cfg.Paths.ArchiveDir, cfg.TmpSuffix)

	events, err := eventlog.Open(cfg.Paths.LogDir)
	require.NoError(t, err)
	albumLock := lockmgr.NewAlbumLock(filepath.Join(cfg.Paths.Working, "locks", "albums"))
	proc := processor.New(config.NewSnapshot(cfg), &fakeToolkit{}, &fakeSeparator{}, albumLock, events, zerolog.Nop())

	return consumer, proc
}

// TestClaimAndProcessOne_PrefersAlbumSiblingOverGlobalOldest exercises
// §4.5's album-priority rule: once an album's first track has been
// claimed, the next claim prefers its still-queued sibling over a
// candidate that is globally older but belongs to a different album.
func TestClaimAndProcessOne_PrefersAlbumSiblingOverGlobalOldest(t *testing.T) {
	incoming := t.TempDir()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	track1 := filepath.Join(incoming, "SomeAlbum", "track1")
	track2 := filepath.Join(incoming, "SomeAlbum", "track2")
	other := filepath.Join(incoming, "OtherAlbum", "trackX")

	writeJob(t, track1, "track1", base)                       // globally oldest
	writeJob(t, other, "trackX", base.Add(1*time.Hour))       // globally 2nd oldest
	writeJob(t, track2, "track2", base.Add(2*time.Hour))      // globally newest

	consumer, proc := newTestConsumerAndProcessor(t, incoming)
	ctx := context.Background()

	processed, sourceDir, err := claimAndProcessOne(ctx, consumer, proc, "", false)
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, track1, sourceDir)

	// Without album priority the next claim would pick trackX (globally
	// older than track2); with it, track2 must win since it's
	// SomeAlbum's still-queued sibling.
	processed, sourceDir, err = claimAndProcessOne(ctx, consumer, proc, sourceDir, false)
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, track2, sourceDir)

	processed, sourceDir, err = claimAndProcessOne(ctx, consumer, proc, sourceDir, false)
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, other, sourceDir)
}
