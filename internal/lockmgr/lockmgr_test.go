package lockmgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingletonLock_AcquireWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.lock")
	lock := NewSingletonLock(path)

	require.NoError(t, lock.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ":")
}

func TestSingletonLock_RefusesLiveLocalHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.lock")

	origAlive, origHost := processAlive, hostname
	defer func() { processAlive, hostname = origAlive, origHost }()
	hostname = func() (string, error) { return "worker-1", nil }
	processAlive = func(pid int) bool { return pid == 4242 }

	require.NoError(t, os.WriteFile(path, []byte("worker-1:4242"), 0o600))

	lock := NewSingletonLock(path)
	err := lock.Acquire()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestSingletonLock_TakesOverDeadLocalHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.lock")

	origAlive, origHost := processAlive, hostname
	defer func() { processAlive, hostname = origAlive, origHost }()
	hostname = func() (string, error) { return "worker-1", nil }
	processAlive = func(pid int) bool { return false }

	require.NoError(t, os.WriteFile(path, []byte("worker-1:9999"), 0o600))

	lock := NewSingletonLock(path)
	require.NoError(t, lock.Acquire())
}

func TestSingletonLock_RefusesForeignHost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.lock")

	origHost := hostname
	defer func() { hostname = origHost }()
	hostname = func() (string, error) { return "worker-2", nil }

	require.NoError(t, os.WriteFile(path, []byte("worker-1:123"), 0o600))

	lock := NewSingletonLock(path)
	err := lock.Acquire()
	assert.ErrorIs(t, err, ErrForeignLock)
}

func TestSingletonLock_AcceptsLegacyNumericOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.lock")

	origAlive := processAlive
	defer func() { processAlive = origAlive }()
	processAlive = func(pid int) bool { return pid == 555 }

	require.NoError(t, os.WriteFile(path, []byte("555"), 0o600))

	lock := NewSingletonLock(path)
	err := lock.Acquire()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAlbumLock_ExcludesConcurrentHolder(t *testing.T) {
	dir := t.TempDir()
	locks := NewAlbumLock(dir)

	require.NoError(t, locks.Acquire("/queues/youtube_audio/Some Album"))
	err := locks.Acquire("/queues/youtube_audio/Some Album")
	assert.ErrorIs(t, err, ErrAlbumLocked)

	require.NoError(t, locks.Release("/queues/youtube_audio/Some Album"))
	require.NoError(t, locks.Acquire("/queues/youtube_audio/Some Album"))
}
