// Package mirror keeps a local directory copy of the bucket: Export downloads
// it, Watch publishes edits of mirrored post files back through the
// synchronizer.
package mirror

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/starford/gistblog/internal/checksum"
)

// Dir is a flat directory holding one local file per bucket file.
type Dir struct {
	root string // absolute
}

// Entry describes one mirrored file.
type Entry struct {
	Name     string
	Checksum string
	ModTime  time.Time
}

// OpenDir creates root if needed and returns a Dir for it.
func OpenDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("mirror: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("mirror: mkdir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("mirror: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mirror: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string { return d.root }

// safePath maps a bucket file name to a path directly under root. Bucket
// names are flat, so separators and dot names are rejected.
func (d *Dir) safePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("mirror: invalid file name %q", name)
	}
	return filepath.Join(d.root, name), nil
}

// Read returns a mirrored file's content.
func (d *Dir) Read(name string) ([]byte, error) {
	p, err := d.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("mirror: read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces a mirrored file atomically.
func (d *Dir) Write(name string, content []byte) error {
	p, err := d.safePath(name)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(p, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("mirror: write %s: %w", name, err)
	}
	return nil
}

// Remove deletes a mirrored file.
func (d *Dir) Remove(name string) error {
	p, err := d.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("mirror: remove %s: %w", name, err)
	}
	return nil
}

// List returns every regular, non-hidden file with its checksum, sorted by name.
func (d *Dir) List() ([]Entry, error) {
	des, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("mirror: list: %w", err)
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if !de.Type().IsRegular() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("mirror: stat %s: %w", de.Name(), err)
		}
		sum, err := checksum.File(filepath.Join(d.root, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		out = append(out, Entry{Name: de.Name(), Checksum: sum, ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func isPostFile(name string) bool {
	return strings.HasSuffix(name, ".md") && !strings.HasPrefix(name, ".")
}
