package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJob(t *testing.T, root, name, jobID string, mtime time.Time) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, "job.json")
	content := `{"job_id":"` + jobID + `","source_type":"upload","audio_path":"a.wav"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return dir
}

func newTestConsumer(t *testing.T) (*Consumer, string) {
	t.Helper()
	base := t.TempDir()
	queueRoot := filepath.Join(base, "queues", "youtube_audio")
	working := filepath.Join(base, "working")
	archive := filepath.Join(base, "archive")
	require.NoError(t, os.MkdirAll(queueRoot, 0o750))

	c := New([]string{"youtube_audio"}, map[string]string{"youtube_audio": queueRoot}, working, archive, ".tmp")
	return c, queueRoot
}

func TestDiscover_OrdersByOldestModTime(t *testing.T) {
	c, root := newTestConsumer(t)
	now := time.Now()
	writeJob(t, root, "job_b", "job_b", now)
	writeJob(t, root, "job_a", "job_a", now.Add(-time.Hour))

	jobs, err := c.Discover()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job_a", jobs[0].JobID)
	assert.Equal(t, "job_b", jobs[1].JobID)
}

func TestDiscover_SkipsTmpSuffixedDirs(t *testing.T) {
	c, root := newTestConsumer(t)
	writeJob(t, root, "job_c.tmp", "job_c", time.Now())

	jobs, err := c.Discover()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDiscover_SkipsUnparseableBundles(t *testing.T) {
	c, root := newTestConsumer(t)
	dir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.json"), []byte("{not json"), 0o600))

	jobs, err := c.Discover()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestClaimAndArchive(t *testing.T) {
	c, root := newTestConsumer(t)
	writeJob(t, root, "job_a", "job_a", time.Now())

	jobs, err := c.Discover()
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	claim, err := c.Claim(jobs[0])
	require.NoError(t, err)
	_, err = os.Stat(claim.WorkDir)
	require.NoError(t, err)
	_, err = os.Stat(jobs[0].Dir)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, c.Archive(claim, Disposition{Success: true}))
	_, err = os.Stat(claim.WorkDir)
	assert.True(t, os.IsNotExist(err))
}

func TestClaim_LostRace(t *testing.T) {
	c, root := newTestConsumer(t)
	dir := writeJob(t, root, "job_a", "job_a", time.Now())

	jobs, err := c.Discover()
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, os.RemoveAll(dir)) // simulate a competing consumer winning first

	_, err = c.Claim(jobs[0])
	assert.ErrorIs(t, err, ErrClaimLost)
}
