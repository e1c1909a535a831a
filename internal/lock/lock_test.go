package lock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*ActionLock, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run", "cert.pid")
	return New(path, WithPollInterval(10*time.Millisecond)), path
}

func TestActionLock_AcquireRelease(t *testing.T) {
	l, path := newTestLock(t)

	require.NoError(t, l.Acquire(context.Background()))
	assert.True(t, l.Acquired())
	assert.Equal(t, 1, l.Depth())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))

	l.Release()
	assert.False(t, l.Acquired())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "pid file should be removed")
}

func TestActionLock_Reentrant(t *testing.T) {
	l, path := newTestLock(t)

	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	assert.Equal(t, 2, l.Depth())

	l.Release()
	assert.Equal(t, 1, l.Depth())
	_, err := os.Stat(path)
	assert.NoError(t, err, "pid file kept while still held")

	l.Release()
	assert.Equal(t, 0, l.Depth())
}

func TestActionLock_ReleaseUnheldIsNoop(t *testing.T) {
	l, _ := newTestLock(t)
	l.Release()
	assert.Equal(t, 0, l.Depth())
}

func TestActionLock_ExcludesOtherHolder(t *testing.T) {
	l, path := newTestLock(t)
	other := New(path, WithPollInterval(10*time.Millisecond))

	require.True(t, l.TryAcquire())
	assert.False(t, other.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, other.Acquire(ctx))

	l.Release()
	assert.True(t, other.TryAcquire())
	other.Release()
}

func TestActionLock_AcquireWaitsForRelease(t *testing.T) {
	l, path := newTestLock(t)
	other := New(path, WithPollInterval(10*time.Millisecond))
	require.True(t, l.TryAcquire())

	go func() {
		time.Sleep(50 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, other.Acquire(ctx))
	assert.True(t, other.Acquired())
	other.Release()
}

func TestActionLock_StalePIDIsClaimed(t *testing.T) {
	l, path := newTestLock(t)
	l.alive = func(int) bool { return false }

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	require.True(t, l.TryAcquire())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))
	l.Release()
}

func TestActionLock_LiveForeignPIDWaits(t *testing.T) {
	l, path := newTestLock(t)
	l.alive = func(pid int) bool { return pid == 4242 }

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	assert.False(t, l.TryAcquire())
	assert.False(t, l.Acquired())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(data), "foreign pid must not be overwritten")
}

func TestActionLock_GarbageFileIsClaimed(t *testing.T) {
	l, path := newTestLock(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	assert.True(t, l.TryAcquire())
	l.Release()
}

func TestActionLock_ReleaseKeepsForeignPIDFile(t *testing.T) {
	l, path := newTestLock(t)
	require.True(t, l.TryAcquire())

	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))
	l.Release()

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestActionLock_DegradesToNoop(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	l := New(filepath.Join(blocker, "cert.pid"))
	require.NoError(t, l.Acquire(context.Background()))
	assert.True(t, l.Acquired())
	assert.True(t, l.Degraded())

	require.True(t, l.TryAcquire())
	assert.Equal(t, 2, l.Depth())

	l.Release()
	l.Release()
	assert.False(t, l.Acquired())
	assert.False(t, l.Degraded())
}

func TestNew_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, New("").Path())
}
