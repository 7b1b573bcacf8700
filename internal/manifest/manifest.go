// Package manifest builds and persists the per-job manifest describing
// every artifact a processed job produced (§3, §4.7, §6.2).
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/svidal-nlive/instrumental-dbo/internal/fsutil"
)

// Kind classifies an Artifact per §3.
type Kind string

// Known artifact kinds.
const (
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindStem     Kind = "stem"
	KindCover    Kind = "cover"
	KindMetadata Kind = "metadata"
)

// Artifact is one produced file, classified by (kind, variant), per §3.
type Artifact struct {
	Kind        Kind    `json:"kind"`
	Variant     string  `json:"variant"`
	Label       string  `json:"label"`
	Path        string  `json:"path"`
	Codec       string  `json:"codec,omitempty"`
	Container   string  `json:"container,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// Manifest is the committed, immutable record of one successful job
// (§3, §6.2). It is built once via Build and not changed after Save
// publishes it.
type Manifest struct {
	JobID          string                     `json:"job_id"`
	SourceType     string                     `json:"source_type"`
	ProcessedAt    time.Time                  `json:"processed_at"`
	Artist         string                     `json:"artist"`
	Album          string                     `json:"album"`
	Title          string                     `json:"title"`
	Artifacts      []Artifact                 `json:"artifacts"`
	StemsGenerated bool                       `json:"stems_generated"`
	StemsPreserved bool                       `json:"stems_preserved"`
	Provenance     map[string]json.RawMessage `json:"provenance,omitempty"`
}

// Job carries the identity and resolved metadata fields Build needs;
// kept separate from bundle.Bundle so this package has no dependency
// on the bundle schema beyond what it actually consumes.
type Job struct {
	JobID      string
	SourceType string
	Artist     string
	Album      string
	Title      string
	Provenance map[string]json.RawMessage
}

// Build constructs a Manifest for job, verifying that every artifact
// path resolves to an existing regular file under outputsRoot/job_id/
// (§3 invariant: "a manifest references only files that exist ... at
// commit time"). now is injected so tests and callers control
// processed_at's precision explicitly (UTC, second precision, §4.7).
func Build(job Job, outputsRoot string, artifacts []Artifact, stemsGenerated, stemsPreserved bool, now time.Time) (*Manifest, error) {
	root := filepath.Join(outputsRoot, job.JobID)
	for _, a := range artifacts {
		full := filepath.Join(root, a.Path)
		info, err := os.Stat(full)
		if err != nil {
			return nil, fmt.Errorf("manifest: artifact %s missing under %s: %w", a.Path, root, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("manifest: artifact %s is not a regular file", a.Path)
		}
	}

	sorted := make([]Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].Variant < sorted[j].Variant
	})

	return &Manifest{
		JobID:          job.JobID,
		SourceType:     job.SourceType,
		ProcessedAt:    now.UTC().Truncate(time.Second),
		Artist:         job.Artist,
		Album:          job.Album,
		Title:          job.Title,
		Artifacts:      sorted,
		StemsGenerated: stemsGenerated,
		StemsPreserved: stemsPreserved,
		Provenance:     job.Provenance,
	}, nil
}

// Encode produces the manifest's deterministic on-disk encoding: keys
// sorted at every nesting level, UTF-8, newline-terminated (§4.7). The
// struct is first marshalled, then decoded into generic maps (numbers
// kept verbatim) and re-encoded, since encoding/json sorts map keys
// but emits struct fields in declaration order.
func (m *Manifest) Encode() ([]byte, error) {
	flat, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(flat))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	data, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// Save publishes the manifest atomically to
// outputsRoot/<job_id>/manifest.json via the given tmp directory,
// using fsutil.PublishAtomic as the single documented publish step
// (§4.3, §4.7).
func Save(m *Manifest, tmpDir, outputsRoot string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}

	finalDir := filepath.Join(outputsRoot, m.JobID)
	manifestPath := filepath.Join(tmpDir, "manifest.json")
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return fmt.Errorf("manifest: create tmp dir: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o640); err != nil {
		return fmt.Errorf("manifest: write tmp manifest: %w", err)
	}

	if err := fsutil.PublishAtomic(tmpDir, finalDir); err != nil {
		return fmt.Errorf("manifest: publish: %w", err)
	}
	return nil
}

// Load reads and decodes a manifest.json from disk, used by the Sync
// Router (§4.8 step 1) to validate newly discovered manifests.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from a directory walk under OutputsDir
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks that every required field from §6.2 is present.
func (m *Manifest) Validate() error {
	if m.JobID == "" || m.SourceType == "" || m.ProcessedAt.IsZero() {
		return fmt.Errorf("manifest: missing required identity fields")
	}
	if m.Artist == "" && m.Album == "" && m.Title == "" {
		return fmt.Errorf("manifest: missing artist/album/title")
	}
	return nil
}
