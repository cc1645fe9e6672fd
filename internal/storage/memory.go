package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/starford/gistblog/internal/apperr"
)

const memScheme = "mem://"

// Memory is an in-process Provider with the same batch semantics as the
// remote store. It records every applied batch.
type Memory struct {
	mu          sync.Mutex
	description string
	files       map[string]string
	version     int
	updatedAt   time.Time
	readOnly    bool
	batches     []Batch
	failWrite   error
	failFetch   error
}

// NewMemory returns a bucket holding files.
func NewMemory(files map[string]string) *Memory {
	m := &Memory{files: make(map[string]string, len(files)), version: 1, updatedAt: time.Now().UTC()}
	for k, v := range files {
		m.files[k] = v
	}
	return m
}

// ReadOnly makes every write fail with an AuthError, like a store client
// constructed without a credential.
func (m *Memory) ReadOnly() *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = true
	return m
}

// FailNextWrite makes the next WriteBatch return err without applying it.
func (m *Memory) FailNextWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = err
}

// FailNextFetch makes the next FetchBucket return err.
func (m *Memory) FailNextFetch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFetch = err
}

// Content returns a file's current content.
func (m *Memory) Content(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[name]
	return c, ok
}

// Batches returns the batches applied so far.
func (m *Memory) Batches() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Batch(nil), m.batches...)
}

// Touch bumps the version as if another editor had written.
func (m *Memory) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
}

func (m *Memory) snapshotLocked() *Snapshot {
	s := &Snapshot{
		Description: m.description,
		Version:     m.versionLocked(),
		UpdatedAt:   m.updatedAt,
		Files:       make(map[string]File, len(m.files)),
	}
	for name, content := range m.files {
		s.Files[name] = File{Name: name, RawURL: memScheme + name, Size: int64(len(content))}
	}
	return s
}

func (m *Memory) versionLocked() string {
	return fmt.Sprintf("v%d", m.version)
}

// FetchBucket implements Provider.
func (m *Memory) FetchBucket(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFetch; err != nil {
		m.failFetch = nil
		return nil, err
	}
	return m.snapshotLocked(), nil
}

// ReadFile implements Provider. Locators are "mem://<name>".
func (m *Memory) ReadFile(ctx context.Context, locator string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, ok := strings.CutPrefix(locator, memScheme)
	if !ok {
		return "", &apperr.RemoteError{Status: 400, Message: "bad locator " + locator}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[name]
	if !ok {
		return "", &apperr.RemoteError{Status: 404, Message: "Not Found"}
	}
	return c, nil
}

// WriteBatch implements Provider.
func (m *Memory) WriteBatch(ctx context.Context, b Batch) (*Snapshot, error) {
	if len(b.Files) == 0 {
		return nil, apperr.Invalid("empty mutation set")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return nil, &apperr.AuthError{Message: "no credential configured"}
	}
	if err := m.failWrite; err != nil {
		m.failWrite = nil
		return nil, err
	}
	if b.IfMatch != "" && b.IfMatch != m.versionLocked() {
		return nil, apperr.Conflict("bucket changed since %s", b.IfMatch)
	}
	for name, ch := range b.Files {
		if ch.Delete {
			delete(m.files, name)
			continue
		}
		m.files[name] = ch.Content
	}
	if b.Description != "" {
		m.description = b.Description
	}
	m.version++
	m.updatedAt = time.Now().UTC()
	m.batches = append(m.batches, b)
	return m.snapshotLocked(), nil
}

var _ Provider = (*Memory)(nil)
