package repofile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

const header = `#
# Certificate-Based Repositories
# Managed by subctl
#
`

func init() {
	// yum reads key=value without alignment padding.
	ini.PrettyFormat = false
}

// File is the parsed repository file. Section order is preserved and new
// sections are appended.
type File struct {
	path  string
	order []string
	repos map[string]*Repo
}

// Read parses path. A missing file reads as empty.
func Read(path string) (*File, error) {
	f := &File{path: path, repos: map[string]*Repo{}}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		Loose:               true,
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		r := &Repo{ID: sec.Name(), values: map[string]string{}}
		for _, key := range sec.Keys() {
			if v := key.Value(); v != "" {
				r.Set(key.Name(), v)
			}
		}
		f.order = append(f.order, r.ID)
		f.repos[r.ID] = r
	}
	return f, nil
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Sections returns the repo ids in file order.
func (f *File) Sections() []string {
	return append([]string(nil), f.order...)
}

// Section returns the repo with id, or nil.
func (f *File) Section(id string) *Repo {
	return f.repos[id]
}

// Add inserts or replaces r.
func (f *File) Add(r *Repo) {
	if _, ok := f.repos[r.ID]; !ok {
		f.order = append(f.order, r.ID)
	}
	f.repos[r.ID] = r
}

// Delete removes the section id.
func (f *File) Delete(id string) {
	if _, ok := f.repos[id]; !ok {
		return
	}
	delete(f.repos, id)
	for i, s := range f.order {
		if s == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Bytes renders the file. Empty values are omitted.
func (f *File) Bytes() ([]byte, error) {
	cfg := ini.Empty()
	for _, id := range f.order {
		sec, err := cfg.NewSection(id)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", id, err)
		}
		r := f.repos[id]
		for _, k := range r.order {
			v := r.values[k]
			if v == "" {
				continue
			}
			if _, err := sec.NewKey(k, v); err != nil {
				return nil, fmt.Errorf("section %s key %s: %w", id, k, err)
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write saves the file, creating its directory.
func (f *File) Write() error {
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(f.path), err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}

// Remove deletes the file from disk. A missing file is fine.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("removing %s: %w", path, err)
}
