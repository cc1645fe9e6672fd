// Package models defines the domain types for the blog index.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the ISO-8601 UTC form used for every timestamp in the index
// and in front matter.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Status of a post.
type Status string

const (
	StatusPublished Status = "published"
	StatusDraft     Status = "draft"
)

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout and any RFC 3339 variant.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Post is one record of the index. Filename is the primary key.
type Post struct {
	Filename  string    `json:"filename"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Tags      []string  `json:"tags"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Extra holds fields this version does not know about. They are written
	// back unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

// Published reports whether the post is visible in listings.
func (p *Post) Published() bool {
	return p.Status == StatusPublished
}

// HasTag reports whether tag is one of the post's tags.
func (p *Post) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p Post) Clone() Post {
	if p.Tags != nil {
		p.Tags = append([]string(nil), p.Tags...)
	}
	if p.Extra != nil {
		extra := make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		p.Extra = extra
	}
	return p
}

var postKeys = []string{"filename", "slug", "title", "summary", "tags", "status", "created_at", "updated_at"}

// UnmarshalJSON decodes known fields and keeps the rest in Extra. Timestamps
// that do not parse stay in Extra under their original key.
func (p *Post) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Post{}

	str := func(key string, dst *string) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		if string(v) == "null" {
			return nil
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("post field %s: %w", key, err)
		}
		return nil
	}

	var status string
	for key, dst := range map[string]*string{
		"filename": &p.Filename,
		"slug":     &p.Slug,
		"title":    &p.Title,
		"summary":  &p.Summary,
		"status":   &status,
	} {
		if err := str(key, dst); err != nil {
			return err
		}
	}
	p.Status = Status(status)

	if v, ok := raw["tags"]; ok {
		delete(raw, "tags")
		if string(v) != "null" {
			if err := json.Unmarshal(v, &p.Tags); err != nil {
				return fmt.Errorf("post field tags: %w", err)
			}
		}
	}

	for key, dst := range map[string]*time.Time{
		"created_at": &p.CreatedAt,
		"updated_at": &p.UpdatedAt,
	} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		t, err := ParseTime(s)
		if err != nil {
			continue
		}
		*dst = t
		delete(raw, key)
	}

	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// MarshalJSON writes known fields and Extra. Zero timestamps are omitted so an
// unparsed original value kept in Extra is written back instead.
func (p Post) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(postKeys)+len(p.Extra))
	for k, v := range p.Extra {
		out[k] = v
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	out["filename"] = p.Filename
	out["slug"] = p.Slug
	out["title"] = p.Title
	out["summary"] = p.Summary
	out["tags"] = tags
	out["status"] = string(p.Status)
	if !p.CreatedAt.IsZero() {
		out["created_at"] = FormatTime(p.CreatedAt)
	}
	if !p.UpdatedAt.IsZero() {
		out["updated_at"] = FormatTime(p.UpdatedAt)
	}
	return json.Marshal(out)
}

// Index is the index document. Posts keep storage order.
type Index struct {
	Posts []Post `json:"posts"`

	// Extra holds unknown top-level fields.
	Extra map[string]json.RawMessage `json:"-"`
}

// Find returns the position of the post with filename, or -1.
func (ix *Index) Find(filename string) int {
	for i := range ix.Posts {
		if ix.Posts[i].Filename == filename {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (ix *Index) Clone() *Index {
	out := &Index{Posts: make([]Post, len(ix.Posts))}
	for i, p := range ix.Posts {
		out.Posts[i] = p.Clone()
	}
	if ix.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(ix.Extra))
		for k, v := range ix.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// UnmarshalJSON decodes posts and keeps unknown fields.
func (ix *Index) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*ix = Index{}
	if v, ok := raw["posts"]; ok {
		delete(raw, "posts")
		if string(v) != "null" {
			if err := json.Unmarshal(v, &ix.Posts); err != nil {
				return fmt.Errorf("index posts: %w", err)
			}
		}
	}
	if len(raw) > 0 {
		ix.Extra = raw
	}
	return nil
}

// MarshalJSON writes posts (never null) and Extra.
func (ix Index) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(ix.Extra)+1)
	for k, v := range ix.Extra {
		out[k] = v
	}
	posts := ix.Posts
	if posts == nil {
		posts = []Post{}
	}
	out["posts"] = posts
	return json.Marshal(out)
}

// Encode renders the index document as stored remotely.
func (ix *Index) Encode() (string, error) {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode index: %w", err)
	}
	return string(data), nil
}

// DecodeIndex parses an index document.
func DecodeIndex(text string) (*Index, error) {
	var ix Index
	if err := json.Unmarshal([]byte(text), &ix); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return &ix, nil
}
