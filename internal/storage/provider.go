// Package storage defines the remote bucket abstraction: a named set of text
// files that is read anonymously and written in atomic batches.
package storage

import (
	"context"
	"sort"
	"time"
)

// File describes one file of a bucket snapshot.
type File struct {
	Name string
	// RawURL is the locator passed to Provider.ReadFile.
	RawURL string
	Size   int64
}

// Snapshot is the state of the bucket at one point in time.
type Snapshot struct {
	Description string
	// Version identifies this state of the bucket; it changes on every write.
	Version   string
	UpdatedAt time.Time
	Files     map[string]File
}

// File returns the named file.
func (s *Snapshot) File(name string) (File, bool) {
	f, ok := s.Files[name]
	return f, ok
}

// Names returns the file names in lexical order.
func (s *Snapshot) Names() []string {
	out := make([]string, 0, len(s.Files))
	for name := range s.Files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Change is a per-file mutation: either new content or deletion.
type Change struct {
	Content string
	Delete  bool
}

// Put returns a change that creates or replaces a file.
func Put(content string) Change { return Change{Content: content} }

// Tombstone returns a change that deletes a file.
func Tombstone() Change { return Change{Delete: true} }

// Batch is a set of changes applied as one atomic write.
type Batch struct {
	// Description, when non-empty, replaces the bucket description.
	Description string
	Files       map[string]Change
	// IfMatch, when non-empty, asks the store to reject the write if the
	// bucket version differs.
	IfMatch string
}

// Provider is the interface for bucket operations.
type Provider interface {
	// FetchBucket returns the current file set and locators.
	FetchBucket(ctx context.Context) (*Snapshot, error)
	// ReadFile dereferences a locator to the file's content. No credential is used.
	ReadFile(ctx context.Context, locator string) (string, error)
	// WriteBatch applies every change in b or none of them.
	WriteBatch(ctx context.Context, b Batch) (*Snapshot, error)
}
