package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "memwatch/internal/errors"
)

// Lock is a cross-process run lock backed by an exclusively created file.
type Lock struct {
	path string
}

// AcquireLock takes the run lock at path. A lock file older than staleAfter is
// assumed to belong to a crashed run and is replaced; staleAfter <= 0 never
// breaks an existing lock.
func AcquireLock(path string, staleAfter time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.NewPersistenceError("mkdir", filepath.Dir(path), err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			if err := writeHolder(f); err != nil {
				os.Remove(path)
				return nil, apperrors.NewPersistenceError("lock", path, err)
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, apperrors.NewPersistenceError("lock", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			// Released between OpenFile and Stat.
			continue
		}
		if staleAfter > 0 && time.Since(info.ModTime()) > staleAfter {
			os.Remove(path)
			continue
		}

		holder, _ := os.ReadFile(path)
		return nil, fmt.Errorf("%w (held by %s)", apperrors.ErrLocked, strings.TrimSpace(string(holder)))
	}

	return nil, fmt.Errorf("%w: %s", apperrors.ErrLocked, path)
}

// writeHolder records the owning process in f and closes it.
func writeHolder(f *os.File) error {
	_, werr := fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
