// Package testutil provides shared test helpers for seeding buckets.
package testutil

import (
	"testing"
	"time"

	"github.com/starford/gistblog/internal/frontmatter"
	"github.com/starford/gistblog/internal/models"
	"github.com/starford/gistblog/internal/slug"
	"github.com/starford/gistblog/internal/storage"
)

// IndexFile is the index name used by seeded buckets.
const IndexFile = "index.json"

// Post describes one seeded post. Slug defaults to the slugified title and
// the filename is built from Created and Slug.
type Post struct {
	Title   string
	Slug    string
	Summary string
	Tags    []string
	Draft   bool
	Created time.Time
	Body    string
}

// Day returns midnight UTC of the given day in January 2024.
func Day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// Record returns the index record for p.
func (p Post) Record() models.Post {
	s := p.Slug
	if s == "" {
		s = slug.Slugify(p.Title)
	}
	status := models.StatusPublished
	if p.Draft {
		status = models.StatusDraft
	}
	return models.Post{
		Filename:  slug.BuildFilename(p.Created, s),
		Slug:      s,
		Title:     p.Title,
		Summary:   p.Summary,
		Tags:      p.Tags,
		Status:    status,
		CreatedAt: p.Created,
		UpdatedAt: p.Created,
	}
}

// Files renders posts as bucket files: the index in the given order plus one
// post file each.
func Files(t *testing.T, posts ...Post) map[string]string {
	t.Helper()
	ix := &models.Index{Posts: make([]models.Post, 0, len(posts))}
	files := make(map[string]string, len(posts)+1)
	for _, p := range posts {
		rec := p.Record()
		ix.Posts = append(ix.Posts, rec)
		files[rec.Filename] = frontmatter.Encode(frontmatter.MetaFromPost(rec), p.Body)
	}
	text, err := ix.Encode()
	if err != nil {
		t.Fatalf("encode index: %v", err)
	}
	files[IndexFile] = text
	return files
}

// Bucket returns an in-memory bucket seeded with posts.
func Bucket(t *testing.T, posts ...Post) *storage.Memory {
	t.Helper()
	return storage.NewMemory(Files(t, posts...))
}
