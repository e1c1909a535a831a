// Package certdir manages directories of PEM certificates on disk.
package certdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/opmodel/subctl/internal/output"
)

const (
	pemSuffix = ".pem"
	keySuffix = "key.pem"
)

// directory lists and caches parsed certificates found in path.
// Files ending in key.pem are never treated as certificates.
type directory[T any] struct {
	path  string
	parse func(path string, data []byte) (T, error)

	mu      sync.Mutex
	listing []T
	loaded  bool
}

// Path returns the directory path.
func (d *directory[T]) Path() string {
	return d.path
}

// Refresh drops the cached listing; the next List rereads the directory.
func (d *directory[T]) Refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listing = nil
	d.loaded = false
}

// List returns every parseable certificate, ordered by file name. A missing
// directory lists as empty; unparseable files are logged and skipped.
func (d *directory[T]) List() ([]T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return d.listing, nil
	}

	files, err := certFiles(d.path)
	if err != nil {
		return nil, err
	}

	var listing []T
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			output.Warn("reading certificate", "path", path, "err", err)
			continue
		}
		c, err := d.parse(path, data)
		if err != nil {
			output.Warn("skipping unparseable certificate", "path", path, "err", err)
			continue
		}
		listing = append(listing, c)
	}

	d.listing = listing
	d.loaded = true
	return listing, nil
}

// Create ensures the directory exists.
func (d *directory[T]) Create() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", d.path, err)
	}
	return nil
}

func certFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pemSuffix) || strings.HasSuffix(name, keySuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// writeAtomic writes data to path via a temporary file in the same directory.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
