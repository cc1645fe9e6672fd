// Package frontmatter encodes and decodes the metadata header carried at the
// top of every post file.
//
// The header grammar is deliberately small:
//
//	---
//	title: Hello World
//	slug: hello-world
//	tags: [go, "tag, with comma"]
//	summary: One line
//	created_at: 2024-03-05T10:00:00.000Z
//	updated_at: 2024-03-05T10:00:00.000Z
//	status: published
//	---
//
// Each line is "key: value", split at the first colon. A value is either a
// scalar (bare text, or a double-quoted string with Go escapes) or a bracketed
// list of bare or double-quoted items separated by commas. Decoding never
// fails: a value that does not parse as its apparent kind is kept as the raw
// text.
package frontmatter

import (
	"strconv"
	"strings"
	"time"

	"github.com/starford/gistblog/internal/models"
)

const delim = "---"

// Meta is the typed view of a header.
type Meta struct {
	Title     string
	Slug      string
	Tags      []string
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    models.Status
}

// MetaFromPost copies the header fields of an index record.
func MetaFromPost(p models.Post) Meta {
	return Meta{
		Title:     p.Title,
		Slug:      p.Slug,
		Tags:      p.Tags,
		Summary:   p.Summary,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Status:    p.Status,
	}
}

// Encode renders the header followed by body. Field order is fixed, so the
// output is reproducible for equal inputs. An empty status is written as
// published.
func Encode(m Meta, body string) string {
	status := string(m.Status)
	if status == "" {
		status = string(models.StatusPublished)
	}

	var b strings.Builder
	b.Grow(256 + len(body))
	b.WriteString(delim + "\n")
	writeField(&b, "title", scalar(m.Title))
	writeField(&b, "slug", scalar(m.Slug))
	writeField(&b, "tags", list(m.Tags))
	writeField(&b, "summary", scalar(m.Summary))
	writeField(&b, "created_at", timestamp(m.CreatedAt))
	writeField(&b, "updated_at", timestamp(m.UpdatedAt))
	writeField(&b, "status", scalar(status))
	b.WriteString(delim + "\n")
	b.WriteString(body)
	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return models.FormatTime(t)
}

func scalar(s string) string {
	if s != strings.TrimSpace(s) || strings.ContainsAny(s, "\r\n") ||
		strings.HasPrefix(s, `"`) || strings.HasPrefix(s, "[") {
		return strconv.Quote(s)
	}
	return s
}

func list(items []string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		if it == "" || it != strings.TrimSpace(it) || strings.ContainsAny(it, ",[]\"\r\n") {
			parts[i] = strconv.Quote(it)
		} else {
			parts[i] = it
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Value is one decoded header value.
type Value struct {
	// Raw is the scalar text, unquoted when it was a valid quoted string.
	// For values that looked like a list but failed to parse, Raw holds the
	// original bracketed text and IsList is false.
	Raw    string
	List   []string
	IsList bool
}

// Header is a decoded header. Keys keep their first-seen order; a repeated
// key overwrites the earlier value.
type Header struct {
	keys   []string
	fields map[string]Value
}

// Len returns the number of distinct keys.
func (h Header) Len() int { return len(h.keys) }

// Keys returns the keys in document order.
func (h Header) Keys() []string { return append([]string(nil), h.keys...) }

// Get returns the value stored under key.
func (h Header) Get(key string) (Value, bool) {
	v, ok := h.fields[key]
	return v, ok
}

// Has reports whether key is present.
func (h Header) Has(key string) bool {
	_, ok := h.fields[key]
	return ok
}

// String returns the scalar text of key. List values are not strings.
func (h Header) String(key string) (string, bool) {
	v, ok := h.fields[key]
	if !ok || v.IsList {
		return "", false
	}
	return v.Raw, true
}

// List returns the items of a list-valued key.
func (h Header) List(key string) ([]string, bool) {
	v, ok := h.fields[key]
	if !ok || !v.IsList {
		return nil, false
	}
	return v.List, true
}

// Meta converts the header into typed metadata. Missing or malformed fields
// are left zero; the raw text is still available through Get.
func (h Header) Meta() Meta {
	var m Meta
	m.Title, _ = h.String("title")
	m.Slug, _ = h.String("slug")
	m.Summary, _ = h.String("summary")
	m.Tags, _ = h.List("tags")
	if s, ok := h.String("status"); ok {
		m.Status = models.Status(s)
	}
	if s, ok := h.String("created_at"); ok && s != "" {
		m.CreatedAt, _ = models.ParseTime(s)
	}
	if s, ok := h.String("updated_at"); ok && s != "" {
		m.UpdatedAt, _ = models.ParseTime(s)
	}
	return m
}

func (h *Header) set(key string, v Value) {
	if h.fields == nil {
		h.fields = make(map[string]Value)
	}
	if _, ok := h.fields[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.fields[key] = v
}

// Decode splits text into its header and body. The first line must be
// exactly "---" and the header ends at the next line that is exactly "---";
// the newline after the closing delimiter is not part of the body. Without a
// complete header the whole text is returned as body.
func Decode(text string) (Header, string) {
	first, rest, ok := cutLine(text)
	if !ok || first != delim {
		return Header{}, text
	}

	var h Header
	var lines []string
	for {
		line, next, more := cutLine(rest)
		if line == delim {
			for _, l := range lines {
				parseLine(&h, l)
			}
			if !more {
				return h, ""
			}
			return h, next
		}
		if !more {
			return Header{}, text
		}
		lines = append(lines, line)
		rest = next
	}
}

// cutLine returns the first line of s without its terminator and whether a
// newline terminated it.
func cutLine(s string) (line, rest string, ok bool) {
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return strings.TrimSuffix(s, "\r"), "", false
	}
	return strings.TrimSuffix(s[:i], "\r"), s[i+1:], true
}

func parseLine(h *Header, line string) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return
	}
	key := strings.TrimSpace(line[:i])
	if key == "" {
		return
	}
	h.set(key, parseValue(strings.TrimSpace(line[i+1:])))
}

func parseValue(s string) Value {
	switch {
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		items, ok := parseList(s[1 : len(s)-1])
		if !ok {
			return Value{Raw: s}
		}
		return Value{List: items, IsList: true}
	case strings.HasPrefix(s, `"`):
		if u, err := strconv.Unquote(s); err == nil {
			return Value{Raw: u}
		}
		return Value{Raw: s}
	default:
		return Value{Raw: s}
	}
}

// parseList tokenizes the inside of a bracketed list. Items are bare text up
// to the next comma, or double-quoted strings. Empty bare items, stray
// brackets or quotes, and unterminated strings reject the whole list.
func parseList(s string) ([]string, bool) {
	items := []string{}
	s = strings.TrimSpace(s)
	if s == "" {
		return items, true
	}
	for {
		s = strings.TrimLeft(s, " \t")
		var item string
		if strings.HasPrefix(s, `"`) {
			end := quotedEnd(s)
			if end < 0 {
				return nil, false
			}
			u, err := strconv.Unquote(s[:end])
			if err != nil {
				return nil, false
			}
			item = u
			s = strings.TrimLeft(s[end:], " \t")
			if s != "" && s[0] != ',' {
				return nil, false
			}
		} else {
			j := strings.IndexByte(s, ',')
			raw := s
			if j >= 0 {
				raw = s[:j]
			}
			item = strings.TrimSpace(raw)
			if item == "" || strings.ContainsAny(item, "[]\"") {
				return nil, false
			}
			s = s[len(raw):]
		}
		items = append(items, item)
		if s == "" {
			return items, true
		}
		// s starts with the separating comma.
		s = s[1:]
		if strings.TrimSpace(s) == "" {
			return nil, false
		}
	}
}

// quotedEnd returns the index just past the closing quote of the string that
// starts at s[0], or -1.
func quotedEnd(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return -1
}
