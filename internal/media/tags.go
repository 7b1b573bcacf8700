package media

import (
	"context"
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// TagSet is the set of ID3 fields the adapter reads and writes, per §4.1.
type TagSet struct {
	Artist  string
	Album   string
	Title   string
	Comment string
}

// CommentTag builds the Comment tag value the Processor must stamp on
// every instrumental artifact, per §4.1: "[INST_DBO__model-<model>__sr-<rate>__bit-<depth>]".
func CommentTag(model string, sampleRate, bitDepth int) string {
	return fmt.Sprintf("[INST_DBO__model-%s__sr-%d__bit-%d]", model, sampleRate, bitDepth)
}

// ReadTags reads the ID3 tags (and any embedded cover art) from path
// using dhowden/tag, per §4.1.
func ReadTags(path string) (TagSet, []byte, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the job's own working directory
	if err != nil {
		return TagSet{}, nil, fmt.Errorf("media: read_tags: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if err == tag.ErrNoTagsFound {
			return TagSet{}, nil, nil
		}
		return TagSet{}, nil, fmt.Errorf("media: read_tags: %s: %w", path, err)
	}

	ts := TagSet{Artist: m.Artist(), Album: m.Album(), Title: m.Title(), Comment: m.Comment()}

	var cover []byte
	if pic := m.Picture(); pic != nil {
		cover = pic.Data
	}
	return ts, cover, nil
}

// WriteTags writes ts (and an optional cover image) to the MP3 at
// path, per §4.1. ffmpeg cannot rewrite metadata in place, so this
// re-muxes through a temporary sibling file and replaces the original;
// the stream is copied, never re-encoded.
func (t *Toolkit) WriteTags(ctx context.Context, path string, ts TagSet, coverBytes []byte) error {
	tmp := path + ".tagging.tmp"
	defer func() { _ = os.Remove(tmp) }()

	args := []string{"-y", "-i", path}

	var coverPath string
	if len(coverBytes) > 0 {
		cf, err := os.CreateTemp("", "media-cover-*.jpg")
		if err != nil {
			return fmt.Errorf("media: write_tags: stage cover: %w", err)
		}
		coverPath = cf.Name()
		defer func() { _ = os.Remove(coverPath) }()
		if _, err := cf.Write(coverBytes); err != nil {
			_ = cf.Close()
			return fmt.Errorf("media: write_tags: stage cover: %w", err)
		}
		if err := cf.Close(); err != nil {
			return fmt.Errorf("media: write_tags: stage cover: %w", err)
		}
		args = append(args, "-i", coverPath, "-map", "0:a", "-map", "1:v", "-c:v", "copy", "-disposition:v:0", "attached_pic")
	}

	args = append(args,
		"-c:a", "copy",
		"-id3v2_version", "3",
		"-metadata", "artist="+ts.Artist,
		"-metadata", "album="+ts.Album,
		"-metadata", "title="+ts.Title,
		"-metadata", "comment="+ts.Comment,
		tmp,
	)

	if err := t.run(ctx, args); err != nil {
		return fmt.Errorf("media: write_tags: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("media: write_tags: replace %s: %w", path, err)
	}
	return nil
}
