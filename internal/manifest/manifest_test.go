package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, outputsRoot, jobID, rel string) {
	t.Helper()
	full := filepath.Join(outputsRoot, jobID, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o640))
}

func TestBuild_SortsArtifactsAndVerifiesExistence(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "job-1", "files/instrumental.mp3")
	writeArtifact(t, root, "job-1", "files/cover.jpg")

	m, err := Build(Job{JobID: "job-1", SourceType: "audio_album", Artist: "A", Album: "B", Title: "C"}, root,
		[]Artifact{
			{Kind: KindAudio, Variant: "instrumental", Path: "files/instrumental.mp3"},
			{Kind: KindCover, Path: "files/cover.jpg"},
		}, true, false, time.Now())
	require.NoError(t, err)

	require.Len(t, m.Artifacts, 2)
	assert.Equal(t, KindAudio, m.Artifacts[0].Kind)
	assert.Equal(t, KindCover, m.Artifacts[1].Kind)
}

func TestBuild_MissingArtifactFails(t *testing.T) {
	root := t.TempDir()
	_, err := Build(Job{JobID: "job-2", SourceType: "audio_album", Title: "T"}, root,
		[]Artifact{{Kind: KindAudio, Path: "files/instrumental.mp3"}}, true, false, time.Now())
	assert.Error(t, err)
}

func TestEncode_IsDeterministicAndNewlineTerminated(t *testing.T) {
	m := &Manifest{JobID: "job-3", SourceType: "audio_album", Title: "T", ProcessedAt: time.Unix(0, 0).UTC()}
	a, err := m.Encode()
	require.NoError(t, err)
	b, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, byte('\n'), a[len(a)-1])
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "job-4", "files/instrumental.mp3")

	m, err := Build(Job{JobID: "job-4", SourceType: "audio_album", Artist: "A", Title: "T"}, root,
		[]Artifact{{Kind: KindAudio, Path: "files/instrumental.mp3"}}, false, false, time.Now())
	require.NoError(t, err)

	tmp := filepath.Join(root, "job-4"+".tmp")
	require.NoError(t, Save(m, tmp, root))

	loaded, err := Load(filepath.Join(root, "job-4", "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, "job-4", loaded.JobID)
	require.NoError(t, loaded.Validate())
}

func TestValidate_RejectsMissingIdentityOrMetadata(t *testing.T) {
	m := &Manifest{JobID: "job-5", SourceType: "audio_album", ProcessedAt: time.Now()}
	assert.Error(t, m.Validate())

	m.Artist = "A"
	assert.NoError(t, m.Validate())
}
