// Package processor implements the Processor (C6): the end-to-end
// pipeline that turns one claimed job bundle into published,
// manifested output artifacts.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/svidal-nlive/instrumental-dbo/internal/bundle"
	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/eventlog"
	"github.com/svidal-nlive/instrumental-dbo/internal/fsutil"
	"github.com/svidal-nlive/instrumental-dbo/internal/lockmgr"
	"github.com/svidal-nlive/instrumental-dbo/internal/manifest"
	"github.com/svidal-nlive/instrumental-dbo/internal/media"
	"github.com/svidal-nlive/instrumental-dbo/internal/queue"
	"github.com/svidal-nlive/instrumental-dbo/internal/separator"
)

// Toolkit is the subset of media.Toolkit the Processor depends on,
// allowing tests to substitute a fake.
type Toolkit interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractChunk(ctx context.Context, src, out string, start, duration float64) error
	CrossfadeConcat(ctx context.Context, orderedParts []string, out string, fadeMs int) error
	MixStems(ctx context.Context, parts []string, out string) error
	EncodeMP3(ctx context.Context, srcWav, out string, mode media.EncodeMode) error
	WriteTags(ctx context.Context, path string, ts media.TagSet, coverBytes []byte) error
	MuxVideo(ctx context.Context, src, out string) error
}

// Separator is the subset of separator.Adapter the Processor depends on.
type Separator interface {
	Separate(ctx context.Context, chunkWav, outDir string, timeout time.Duration) (separator.Result, error)
}

// Processor runs the full pipeline for one claimed job at a time.
type Processor struct {
	snapshot  *config.Snapshot
	toolkit   Toolkit
	separator Separator
	albumLock *lockmgr.AlbumLock
	events    *eventlog.Log
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs a Processor.
func New(snapshot *config.Snapshot, toolkit Toolkit, sep Separator, albumLock *lockmgr.AlbumLock, events *eventlog.Log, logger zerolog.Logger) *Processor {
	return &Processor{
		snapshot:  snapshot,
		toolkit:   toolkit,
		separator: sep,
		albumLock: albumLock,
		events:    events,
		logger:    logger.With().Str("component", "processor").Logger(),
		now:       time.Now,
	}
}

// Outcome summarizes the result of processing one claimed job.
type Outcome struct {
	Run         *Run
	Disposition queue.Disposition
}

// trackWork carries one audio source's in-flight pipeline state across
// ProcessClaim's phase loops. The per-job state machine is linear
// (§4.6), so a multi-track album bundle advances it exactly once per
// phase rather than once per track; trackWork is what lets the encode
// phase, say, still know which chunks and stems belong to which track.
type trackWork struct {
	trackDir      string
	resolved      resolvedMeta
	chunkPaths    []string
	accompaniment []string
	stems         []map[string]string
	variantWavs   map[bundle.Variant]string
}

// ProcessClaim runs the full pipeline (§4.6 steps 1-12) for one
// claimed job whose bundle lives at claim.WorkDir. When dryRun is set,
// the pipeline stops after chunk planning and separation, without
// merging, encoding, publishing, or writing a manifest.
func (p *Processor) ProcessClaim(ctx context.Context, claim *queue.ClaimedJob, dryRun bool) (Outcome, error) {
	cfg := p.snapshot.Current()
	run := NewRun(claim.Job.JobID)

	b, err := bundle.Load(claim.WorkDir)
	if err != nil {
		_ = run.Fail("invalid_bundle")
		return Outcome{Run: run, Disposition: queue.Disposition{Success: false, Reason: "invalid_bundle"}}, err
	}

	if err := p.albumLock.Acquire(filepath.Dir(claim.SourceID)); err != nil {
		return Outcome{}, fmt.Errorf("processor: album lock: %w", err)
	}
	defer func() { _ = p.albumLock.Release(filepath.Dir(claim.SourceID)) }()

	workdir, err := fsutil.NewScopedWorkdir(cfg.Paths.Working, "run-"+claim.Job.JobID)
	if err != nil {
		return Outcome{}, fmt.Errorf("processor: scoped workdir: %w", err)
	}
	defer func() { _ = workdir.Close() }()

	sources := b.AudioSources()
	multiTrack := len(sources) > 1

	if err := run.Advance(StatusResolving); err != nil {
		return Outcome{}, err
	}
	firstSourcePath := filepath.Join(claim.WorkDir, sources[0])
	firstTags, embeddedCover, _ := media.ReadTags(firstSourcePath)
	albumResolved := p.resolveMetadata(b, firstTags, firstSourcePath)
	cover := p.resolveCover(b, embeddedCover)

	if err := run.Advance(StatusChunking); err != nil {
		return Outcome{}, err
	}
	tracks := make([]*trackWork, len(sources))
	for i, rel := range sources {
		sourcePath := filepath.Join(claim.WorkDir, rel)
		embeddedTags, _, _ := media.ReadTags(sourcePath)
		resolved := p.resolveMetadata(b, embeddedTags, sourcePath)

		total, err := p.toolkit.ProbeDuration(ctx, sourcePath)
		if err != nil {
			return p.rejectCorrupt(cfg, claim, sourcePath, err)
		}

		plan, err := PlanChunks(total, float64(cfg.Processing.ChunkSeconds), float64(cfg.Processing.ChunkOverlapSec), cfg.Processing.ChunkMax, cfg.Processing.ChunkingEnabled)
		if err != nil {
			if errors.Is(err, ErrPlanExceeded) {
				return p.rejectCorrupt(cfg, claim, sourcePath, err)
			}
			return Outcome{}, err
		}
		_ = p.events.Emit(p.now(), eventlog.EventPlanned, map[string]any{
			"job_id": claim.Job.JobID, "track": i, "total_sec": total, "chunk_count": len(plan),
		})

		trackDir := ""
		if multiTrack {
			trackDir = fmt.Sprintf("track_%02d", i+1)
		}
		chunkDir := filepath.Join(workdir.Path, "chunks", trackDir)
		chunkPaths := make([]string, len(plan))
		for j, spec := range plan {
			out := filepath.Join(chunkDir, fmt.Sprintf("chunk_%03d.wav", j))
			if err := p.toolkit.ExtractChunk(ctx, sourcePath, out, spec.Start, spec.Duration); err != nil {
				return Outcome{}, fmt.Errorf("processor: extract chunk %d (track %d): %w", j, i, err)
			}
			chunkPaths[j] = out
		}

		tracks[i] = &trackWork{trackDir: trackDir, resolved: resolved, chunkPaths: chunkPaths}
	}

	if err := run.Advance(StatusSeparating); err != nil {
		return Outcome{}, err
	}
	for i, tw := range tracks {
		accompaniment, stems, err := p.separateChunks(ctx, cfg, filepath.Join(workdir.Path, "chunks", tw.trackDir), tw.chunkPaths)
		if err != nil {
			workdir.Retain()
			_ = run.Fail("separation")
			_ = p.events.Emit(p.now(), eventlog.EventChunkFailed, map[string]any{"job_id": claim.Job.JobID, "track": i, "error": err.Error()})
			return Outcome{Run: run, Disposition: queue.Disposition{Success: false, Reason: "separation"}}, err
		}
		tw.accompaniment = accompaniment
		tw.stems = stems
	}

	if dryRun {
		_ = p.events.Emit(p.now(), eventlog.EventDryRun, map[string]any{"job_id": claim.Job.JobID, "track_count": len(tracks)})
		return Outcome{Run: run, Disposition: queue.Disposition{Success: true, Reason: "dry_run"}}, nil
	}

	if err := run.Advance(StatusMerging); err != nil {
		return Outcome{}, err
	}
	for _, tw := range tracks {
		mergedDir := filepath.Join(workdir.Path, "merged", tw.trackDir)
		instrumentalWav := filepath.Join(mergedDir, "instrumental.wav")
		if err := p.toolkit.CrossfadeConcat(ctx, tw.accompaniment, instrumentalWav, cfg.Processing.CrossfadeMs); err != nil {
			return Outcome{}, fmt.Errorf("processor: merge: %w", err)
		}
		variantWavs, err := p.buildVariants(ctx, cfg, b, mergedDir, instrumentalWav, tw.stems)
		if err != nil {
			return Outcome{}, err
		}
		tw.variantWavs = variantWavs
	}

	if err := run.Advance(StatusEncoding); err != nil {
		return Outcome{}, err
	}
	// The uuid suffix, not just JobID+TmpSuffix, keeps this run's
	// staging directory distinct from any leftover of a prior crashed
	// attempt at the same job_id still sitting under OutputsDir.
	tmpJobID := claim.Job.JobID + "-" + uuid.NewString()[:8] + cfg.TmpSuffix
	outputsTmp := filepath.Join(cfg.Paths.OutputsDir, tmpJobID)
	filesDir := filepath.Join(outputsTmp, "files")

	comment := media.CommentTag(cfg.Processing.Model, cfg.Processing.SampleRate, cfg.Processing.BitDepth)
	mode := media.EncodeMode(cfg.Processing.MP3Encoding)

	var artifacts []manifest.Artifact
	stemsPreserved := false
	for _, tw := range tracks {
		trackArtifacts, trackStemsPreserved, err := p.encodeAndTag(ctx, cfg, tw.resolved, tw.variantWavs, tw.stems, tw.trackDir, filesDir, cover, comment, mode)
		if err != nil {
			return Outcome{}, err
		}
		artifacts = append(artifacts, trackArtifacts...)
		stemsPreserved = stemsPreserved || trackStemsPreserved
	}

	if cover != nil {
		coverPath := filepath.Join(filesDir, "cover.jpg")
		if err := os.MkdirAll(filepath.Dir(coverPath), 0o750); err != nil {
			return Outcome{}, fmt.Errorf("processor: write cover: %w", err)
		}
		if err := os.WriteFile(coverPath, cover, 0o640); err != nil {
			return Outcome{}, fmt.Errorf("processor: write cover: %w", err)
		}
		artifacts = append(artifacts, manifest.Artifact{
			Kind: manifest.KindCover, Variant: "source", Label: "cover", Path: filepath.Join("files", "cover.jpg"),
		})
	}

	// A bundle-declared video_path is carried through untouched
	// (remuxed, not re-encoded) alongside the audio artifacts it was
	// sourced from, per §6.2's optional files/video.mp4 entry.
	if b.VideoPath != "" {
		videoSrc := filepath.Join(claim.WorkDir, b.VideoPath)
		videoOut := filepath.Join(filesDir, "video.mp4")
		if err := p.toolkit.MuxVideo(ctx, videoSrc, videoOut); err != nil {
			return Outcome{}, fmt.Errorf("processor: mux video: %w", err)
		}
		artifacts = append(artifacts, manifest.Artifact{
			Kind: manifest.KindVideo, Variant: "source", Label: "video",
			Path: filepath.Join("files", "video.mp4"), Container: "mp4",
		})
	}

	// The manifest is built and staged into outputsTmp alongside the
	// artifacts it describes, so a single atomic publish commits both
	// together (§3 invariant: a manifest never references files that
	// aren't already in place).
	m, err := manifest.Build(manifest.Job{
		JobID: tmpJobID, SourceType: b.SourceType,
		Artist: albumResolved.Artist, Album: albumResolved.Album, Title: albumResolved.Title,
		Provenance: b.Provenance,
	}, cfg.Paths.OutputsDir, artifacts, true, stemsPreserved, p.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("processor: build manifest: %w", err)
	}
	m.JobID = claim.Job.JobID

	if err := run.Advance(StatusPublished); err != nil {
		return Outcome{}, err
	}
	if err := manifest.Save(m, outputsTmp, cfg.Paths.OutputsDir); err != nil {
		return Outcome{}, fmt.Errorf("processor: publish: %w", err)
	}
	_ = p.events.Emit(p.now(), eventlog.EventManifestWritten, map[string]any{"job_id": claim.Job.JobID})

	if cfg.Processing.PublishToLibrary && cfg.Paths.MusicLib != "" {
		p.organizeLibrary(cfg, b, albumResolved, artifacts)
	}

	if err := run.Advance(StatusArchived); err != nil {
		return Outcome{}, err
	}
	_ = p.events.Emit(p.now(), eventlog.EventProcessed, map[string]any{"job_id": claim.Job.JobID})

	return Outcome{Run: run, Disposition: queue.Disposition{Success: true}}, nil
}

// rejectCorrupt implements §4.6's corrupt-input handling: the source
// moves to the configured corrupt destination and no partial manifest
// is written.
func (p *Processor) rejectCorrupt(cfg *config.Config, claim *queue.ClaimedJob, sourcePath string, cause error) (Outcome, error) {
	dest := cfg.Paths.ArchiveDir
	if cfg.Recovery.CorruptDest == "quarantine" && cfg.Paths.Quarantine != "" {
		dest = cfg.Paths.Quarantine
	} else {
		dest = filepath.Join(dest, "rejects")
	}
	dest = filepath.Join(dest, claim.Job.JobID)

	if err := fsutil.SafeMove(claim.WorkDir, dest); err != nil {
		return Outcome{}, fmt.Errorf("processor: move corrupt input: %w", err)
	}

	fields := map[string]any{
		"job_id": claim.Job.JobID, "source": sourcePath, "destination": dest, "error": cause.Error(),
	}
	if errors.Is(cause, ErrPlanExceeded) {
		fields["reason"] = "plan_exceeded"
	}
	_ = p.events.Emit(p.now(), eventlog.EventSkippedCorrupt, fields)

	run := NewRun(claim.Job.JobID)
	_ = run.Fail("corrupt")
	return Outcome{Run: run, Disposition: queue.Disposition{Success: false, Reason: "corrupt"}}, nil
}

type resolvedMeta struct {
	Artist string
	Album  string
	Title  string
}

// resolveMetadata implements §4.6 step 1's three-tier resolution:
// the bundle's own declared fields (job.json) win first, then the
// source file's embedded container tags, then folder/filename
// heuristics derived from sourcePath for whatever is still missing.
// sourcePath is the specific audio source being resolved, so an album
// bundle's per-track titles fall back to each track's own filename
// rather than all collapsing onto the first track's.
func (p *Processor) resolveMetadata(b *bundle.Bundle, embedded media.TagSet, sourcePath string) resolvedMeta {
	artist, album, title := b.Artist, b.Album, b.Title
	artist = firstNonEmpty(artist, embedded.Artist)
	album = firstNonEmpty(album, embedded.Album)
	title = firstNonEmpty(title, embedded.Title)

	if artist != "" && album != "" && title != "" {
		return resolvedMeta{Artist: artist, Album: album, Title: title}
	}

	h := bundle.ResolveHeuristic(sourcePath)
	return resolvedMeta{
		Artist: firstNonEmpty(artist, h.Artist),
		Album:  firstNonEmpty(album, h.Album),
		Title:  firstNonEmpty(title, h.Title),
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// resolveCover implements §4.6 step 2: an explicit cover_path wins,
// then a conventionally-named cover image beside the source, then
// whatever attached picture ReadTags finds embedded in the source
// itself (handled by the caller, which already has that tag read).
func (p *Processor) resolveCover(b *bundle.Bundle, embedded []byte) []byte {
	if b.CoverPath != "" {
		if data, err := os.ReadFile(filepath.Join(b.Dir, b.CoverPath)); err == nil { // #nosec G304 - path is bundle-declared, under the job's own working directory
			return data
		}
	}
	for _, name := range []string{"cover.jpg", "cover.jpeg", "cover.png", "cover.webp",
		"Cover.jpg", "Cover.jpeg", "Cover.png", "Cover.webp"} {
		path := filepath.Join(b.Dir, name)
		if data, err := os.ReadFile(path); err == nil { // #nosec G304 - sourceDir is the job's own working directory
			return data
		}
	}
	return embedded
}

// separateChunks implements §4.6 step 5: each chunk is separated with
// per-chunk retry up to MaxRetries; the chunk's output subdirectory is
// removed between attempts.
func (p *Processor) separateChunks(ctx context.Context, cfg *config.Config, chunkDir string, chunkPaths []string) ([]string, []map[string]string, error) {
	accompaniment := make([]string, len(chunkPaths))
	stems := make([]map[string]string, len(chunkPaths))

	for i, chunk := range chunkPaths {
		outDir := filepath.Join(chunkDir, fmt.Sprintf("sep_%03d", i))

		var lastErr error
		for attempt := 0; attempt <= cfg.Processing.MaxRetries; attempt++ {
			result, err := p.separator.Separate(ctx, chunk, outDir, cfg.Processing.Timeout)
			if err == nil {
				accompaniment[i] = result.AccompanimentPath
				stems[i] = result.Stems
				lastErr = nil
				break
			}
			lastErr = err
			_ = os.RemoveAll(outDir)
		}
		if lastErr != nil {
			return nil, nil, fmt.Errorf("processor: separate chunk %d after %d retries: %w", i, cfg.Processing.MaxRetries, lastErr)
		}
	}
	return accompaniment, stems, nil
}

// noDrumsStems are summed per chunk to build the no_drums variant,
// per §5: everything but the isolated drums stem.
var noDrumsStems = []string{"vocals", "bass", "other"}

// buildVariants implements §4.6 step 7: no_drums and drums_only are
// built from the already-separated stems, without re-running
// separation, per the Open Question decision recorded in SPEC_FULL.md.
// drums_only concatenates the drums stem across chunks directly;
// no_drums first sums vocals+bass+other within each chunk, then
// concatenates those per-chunk mixes across chunks.
func (p *Processor) buildVariants(ctx context.Context, cfg *config.Config, b *bundle.Bundle, mergedDir, instrumentalWav string, perChunkStems []map[string]string) (map[bundle.Variant]string, error) {
	out := map[bundle.Variant]string{bundle.VariantInstrumental: instrumentalWav}

	for _, v := range b.RequestedVariants() {
		switch v {
		case bundle.VariantInstrumental:
			continue

		case bundle.VariantDrumsOnly:
			parts := stemPartsByKey(perChunkStems, "drums")
			if len(parts) != len(perChunkStems) {
				continue // this model run didn't expose the stem; skip the variant
			}
			dst := filepath.Join(mergedDir, string(v)+".wav")
			if err := p.toolkit.CrossfadeConcat(ctx, parts, dst, cfg.Processing.CrossfadeMs); err != nil {
				return nil, fmt.Errorf("processor: merge %s: %w", v, err)
			}
			out[v] = dst

		case bundle.VariantNoDrums:
			mixedChunks := make([]string, 0, len(perChunkStems))
			for i, stems := range perChunkStems {
				var parts []string
				for _, key := range noDrumsStems {
					if path, ok := stems[key]; ok {
						parts = append(parts, path)
					}
				}
				if len(parts) != len(noDrumsStems) {
					break // incomplete stem set for this chunk; skip the variant entirely
				}
				mixed := filepath.Join(mergedDir, fmt.Sprintf("no_drums_chunk_%03d.wav", i))
				if err := p.toolkit.MixStems(ctx, parts, mixed); err != nil {
					return nil, fmt.Errorf("processor: mix no_drums chunk %d: %w", i, err)
				}
				mixedChunks = append(mixedChunks, mixed)
			}
			if len(mixedChunks) != len(perChunkStems) {
				continue
			}
			dst := filepath.Join(mergedDir, string(v)+".wav")
			if err := p.toolkit.CrossfadeConcat(ctx, mixedChunks, dst, cfg.Processing.CrossfadeMs); err != nil {
				return nil, fmt.Errorf("processor: merge %s: %w", v, err)
			}
			out[v] = dst
		}
	}
	return out, nil
}

func stemPartsByKey(perChunkStems []map[string]string, key string) []string {
	var parts []string
	for _, stems := range perChunkStems {
		if path, ok := stems[key]; ok {
			parts = append(parts, path)
		}
	}
	return parts
}

// artifactLabel prefixes name with trackDir for a multi-track album,
// leaving single-track labels unchanged.
func artifactLabel(trackDir, name string) string {
	if trackDir == "" {
		return name
	}
	return trackDir + "/" + name
}

// encodeAndTag implements §4.6 step 8 for one track: every produced
// variant is encoded to MP3 and tagged with Artist/Album/Title/Comment
// and cover. When PreserveStems is set, the per-chunk stems are also
// merged across chunks and kept as raw WAV artifacts alongside the
// encoded variants. trackDir namespaces an album track's files under
// filesDir; it is empty for a single-track job.
func (p *Processor) encodeAndTag(ctx context.Context, cfg *config.Config, resolved resolvedMeta, variants map[bundle.Variant]string, perChunkStems []map[string]string, trackDir, filesDir string, cover []byte, comment string, mode media.EncodeMode) ([]manifest.Artifact, bool, error) {
	var artifacts []manifest.Artifact
	for variant, wavPath := range variants {
		mp3Name := string(variant) + ".mp3"
		mp3Path := filepath.Join(filesDir, trackDir, mp3Name)

		if err := p.toolkit.EncodeMP3(ctx, wavPath, mp3Path, mode); err != nil {
			return nil, false, fmt.Errorf("processor: encode %s: %w", variant, err)
		}
		ts := media.TagSet{Artist: resolved.Artist, Album: resolved.Album, Title: resolved.Title, Comment: comment}
		if err := p.toolkit.WriteTags(ctx, mp3Path, ts, cover); err != nil {
			return nil, false, fmt.Errorf("processor: tag %s: %w", variant, err)
		}

		artifacts = append(artifacts, manifest.Artifact{
			Kind: manifest.KindAudio, Variant: string(variant), Label: artifactLabel(trackDir, string(variant)),
			Path: filepath.Join("files", trackDir, mp3Name), Codec: "mp3", Container: "mp3",
		})
	}

	stemsPreserved := false
	if cfg.Processing.PreserveStems {
		stemArtifacts, err := p.preserveStems(ctx, perChunkStems, trackDir, filesDir)
		if err != nil {
			return nil, false, err
		}
		artifacts = append(artifacts, stemArtifacts...)
		stemsPreserved = len(stemArtifacts) > 0
	}

	return artifacts, stemsPreserved, nil
}

// preserveStems merges each fully-present stem across chunks into a
// single WAV artifact, per §5 (stems kept as raw intermediates, not
// re-encoded to MP3).
func (p *Processor) preserveStems(ctx context.Context, perChunkStems []map[string]string, trackDir, filesDir string) ([]manifest.Artifact, error) {
	var artifacts []manifest.Artifact
	for _, key := range []string{"vocals", "drums", "bass", "other"} {
		parts := stemPartsByKey(perChunkStems, key)
		if len(parts) != len(perChunkStems) {
			continue // not every chunk exposed this stem; omit it
		}
		name := key + ".wav"
		dst := filepath.Join(filesDir, trackDir, "stems", name)
		if err := p.toolkit.CrossfadeConcat(ctx, parts, dst, 0); err != nil {
			return nil, fmt.Errorf("processor: preserve stem %s: %w", key, err)
		}
		artifacts = append(artifacts, manifest.Artifact{
			Kind: manifest.KindStem, Variant: key, Label: artifactLabel(trackDir, key),
			Path: filepath.Join("files", trackDir, "stems", name), Codec: "pcm_s16le", Container: "wav",
		})
	}
	return artifacts, nil
}

// organizeLibrary implements §4.6 step 10: an additional copy at the
// legacy-compatible library path, best-effort (a failure here doesn't
// fail the job since the primary OUTPUTS_DIR copy already committed).
// An album's several instrumental artifacts share one artist/album
// directory but need distinct filenames, so a multi-track label's
// track_NN prefix (see artifactLabel) is folded into the title.
func (p *Processor) organizeLibrary(cfg *config.Config, b *bundle.Bundle, resolved resolvedMeta, artifacts []manifest.Artifact) {
	for _, a := range artifacts {
		if a.Kind != manifest.KindAudio || a.Variant != string(bundle.VariantInstrumental) {
			continue
		}
		title := resolved.Title
		if idx := strings.Index(a.Label, "/"); idx > 0 {
			title = fsutil.SanitizeName(a.Label[:idx]) + " - " + title
		}
		dst := filepath.Join(cfg.Paths.MusicLib,
			fsutil.SanitizeName(resolved.Artist),
			fsutil.SanitizeName(resolved.Album),
			fsutil.SanitizeName(title)+".mp3")
		src := filepath.Join(cfg.Paths.OutputsDir, b.JobID, a.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			p.logger.Warn().Err(err).Str("job_id", b.JobID).Msg("library organize: create dir")
			continue
		}
		data, err := os.ReadFile(src) // #nosec G304 - src is our own freshly published output
		if err != nil {
			p.logger.Warn().Err(err).Str("job_id", b.JobID).Msg("library organize: read source")
			continue
		}
		if err := os.WriteFile(dst, data, 0o640); err != nil {
			p.logger.Warn().Err(err).Str("job_id", b.JobID).Msg("library organize: write copy")
		}
	}
}
