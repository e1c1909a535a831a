// Package cache persists the last state reported to the server so that
// unchanged data is not uploaded again.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opmodel/subctl/internal/output"
)

// File is a JSON document of type T stored at a fixed path.
type File[T any] struct {
	path string
}

// New returns a cache file at path.
func New[T any](path string) *File[T] {
	return &File[T]{path: path}
}

// Path returns the cache location.
func (f *File[T]) Path() string {
	return f.path
}

// Read returns the cached value. A missing, unreadable or unparseable file
// is reported as no cache.
func (f *File[T]) Read() (T, bool) {
	var v T
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			output.Debug("cache unreadable, ignoring", "path", f.path, "err", err)
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		output.Debug("cache corrupt, ignoring", "path", f.path, "err", err)
		var zero T
		return zero, false
	}
	return v, true
}

// Write replaces the cached value.
func (f *File[T]) Write(v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache %s: %w", f.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache %s: %w", f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing cache %s: %w", f.path, err)
	}
	return nil
}

// LastUpdate returns the modification time of the cache file.
func (f *File[T]) LastUpdate() (time.Time, bool) {
	fi, err := os.Stat(f.path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Delete removes the cache file. A missing file is fine.
func (f *File[T]) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache %s: %w", f.path, err)
	}
	return nil
}
