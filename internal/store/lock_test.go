package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "memwatch/internal/errors"
)

func TestLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "memwatch.lock")

	first, err := AcquireLock(path, time.Hour)
	require.NoError(t, err)

	_, err = AcquireLock(path, time.Hour)
	assert.ErrorIs(t, err, apperrors.ErrLocked)

	require.NoError(t, first.Release())

	second, err := AcquireLock(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestLockReplacesStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memwatch.lock")
	require.NoError(t, os.WriteFile(path, []byte("12345 2020-01-01T00:00:00Z\n"), 0644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	lock, err := AcquireLock(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestLockReleaseIsIdempotent(t *testing.T) {
	lock, err := AcquireLock(filepath.Join(t.TempDir(), "memwatch.lock"), 0)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestLockRecordsHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memwatch.lock")

	lock, err := AcquireLock(path, time.Hour)
	require.NoError(t, err)
	defer lock.Release()

	holder, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, fmt.Sprintf(`^%d \d{4}-\d{2}-\d{2}T`, os.Getpid()), string(holder))
}

func TestWriteHolderReportsCloseFailure(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "memwatch.lock"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Error(t, writeHolder(f))
}
