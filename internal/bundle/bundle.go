// Package bundle defines the JobBundle schema produced by retrievers
// and the metadata-resolution heuristics the Processor applies when a
// bundle arrives without embedded tags.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrSchema is returned when job.json is missing a required field.
var ErrSchema = errors.New("bundle: schema validation failed")

// Variant names an output stem combination, per §3.
type Variant string

// Known variants (§3).
const (
	VariantInstrumental Variant = "instrumental"
	VariantNoDrums      Variant = "no_drums"
	VariantDrumsOnly    Variant = "drums_only"
)

// Bundle is the decoded, validated job.json contract (§6.1).
type Bundle struct {
	JobID      string   `json:"job_id" validate:"required"`
	SourceType string   `json:"source_type" validate:"required"`
	Artist     string   `json:"artist"`
	Album      string   `json:"album"`
	Title      string   `json:"title"`
	AudioPath  string   `json:"audio_path,omitempty"`
	AudioFiles []string `json:"audio_files,omitempty"`
	VideoPath  string   `json:"video_path,omitempty"`
	CoverPath  string   `json:"cover_path,omitempty"`
	Variants   []string `json:"variants,omitempty"`

	// Provenance carries every unrecognized key verbatim, per §6.1
	// ("Unknown keys MUST be preserved ... and copied into the
	// manifest"). Required keys above are still accessible as typed
	// fields; Provenance holds the rest, including source-specific
	// sub-objects.
	Provenance map[string]json.RawMessage `json:"-"`

	// Dir is the bundle's directory on disk, set by the loader, not
	// part of job.json itself.
	Dir string `json:"-"`
}

var validate = validator.New()

// Load reads and validates job.json from dir. Unknown keys are
// preserved into Provenance. A bundle missing AudioPath and
// AudioFiles fails validation (§6.1: "audio_path or audio_files*").
func Load(dir string) (*Bundle, error) {
	path := filepath.Join(dir, "job.json")
	data, err := os.ReadFile(path) // #nosec G304 - dir is discovered from a configured queue root
	if err != nil {
		return nil, fmt.Errorf("bundle: read job.json: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	b.Dir = dir

	known := map[string]bool{
		"job_id": true, "source_type": true, "artist": true, "album": true,
		"title": true, "audio_path": true, "audio_files": true,
		"video_path": true, "cover_path": true, "variants": true,
	}
	b.Provenance = map[string]json.RawMessage{}
	for k, v := range raw {
		if !known[k] {
			b.Provenance[k] = v
		}
	}

	if err := validate.Struct(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if b.AudioPath == "" && len(b.AudioFiles) == 0 {
		return nil, fmt.Errorf("%w: one of audio_path or audio_files is required", ErrSchema)
	}

	return &b, nil
}

// AudioSources returns the ordered list of audio files the bundle
// carries, whether it declared a single audio_path or an album's
// audio_files list.
func (b *Bundle) AudioSources() []string {
	if len(b.AudioFiles) > 0 {
		return b.AudioFiles
	}
	return []string{b.AudioPath}
}

// RequestedVariants returns the bundle's requested variant set,
// defaulting to {instrumental} per §3.
func (b *Bundle) RequestedVariants() []Variant {
	if len(b.Variants) == 0 {
		return []Variant{VariantInstrumental}
	}
	out := make([]Variant, 0, len(b.Variants))
	for _, v := range b.Variants {
		out = append(out, Variant(v))
	}
	return out
}

// dashSeparators matches the dash forms recognized between artist and
// album in a folder/filename heuristic (§4.6 step 1): hyphen and en dash.
var dashSeparators = regexp.MustCompile(`\s[-\x{2013}]\s`)

// leadingTrackNumber matches a leading track number followed by a
// separator (dot, dash, or space) in a filename-derived title.
var leadingTrackNumber = regexp.MustCompile(`^\s*\d+\s*[-.\s]+\s*`)

// ResolvedMetadata is the outcome of the three-tier resolution order
// in §4.6 step 1: embedded tags → container probe → folder/filename
// heuristics.
type ResolvedMetadata struct {
	Artist string
	Album  string
	Title  string
}

// ResolveHeuristic derives artist/album/title from a source path when
// embedded and container-level tags yielded nothing, per §4.6 step 1.
// It recognizes "Artist - Album", "Artist – Album" (en dash), and
// nested "Artist/Album/Track.ext" hierarchies.
func ResolveHeuristic(sourcePath string) ResolvedMetadata {
	dir := filepath.Dir(sourcePath)
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	title := leadingTrackNumber.ReplaceAllString(base, "")

	parent := filepath.Base(dir)
	if dashSeparators.MatchString(parent) {
		parts := dashSeparators.Split(parent, 2)
		return ResolvedMetadata{Artist: strings.TrimSpace(parts[0]), Album: strings.TrimSpace(parts[1]), Title: title}
	}

	grandparent := filepath.Base(filepath.Dir(dir))
	if grandparent != "." && grandparent != "/" && parent != "." {
		return ResolvedMetadata{Artist: grandparent, Album: parent, Title: title}
	}

	return ResolvedMetadata{Album: parent, Title: title}
}
