// Package query filters, sorts, paginates and looks up posts of an index
// that has already been loaded. Nothing here performs I/O.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/gistblog/internal/apperr"
	"github.com/starford/gistblog/internal/models"
)

const (
	DefaultPageSize = 10
	// TagAll matches every tag.
	TagAll = "all"
)

// Criteria selects posts for the list view.
type Criteria struct {
	Tag   string
	Query string
}

// Filter returns the published posts matching c, newest first. Posts with
// equal created_at keep their index order.
func Filter(posts []models.Post, c Criteria) []models.Post {
	q := strings.ToLower(strings.TrimSpace(c.Query))
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if !p.Published() {
			continue
		}
		if c.Tag != "" && c.Tag != TagAll && !p.HasTag(c.Tag) {
			continue
		}
		if q != "" && !strings.Contains(searchText(p), q) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func searchText(p models.Post) string {
	return strings.ToLower(p.Title + " " + p.Summary + " " + strings.Join(p.Tags, " "))
}

// Page is one page of a list.
type Page struct {
	Items      []models.Post `json:"items"`
	Number     int           `json:"page"`
	Size       int           `json:"page_size"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// Paginate returns page number (1-based) of posts. A size <= 0 means
// DefaultPageSize; the page is clamped to the valid range.
func Paginate(posts []models.Post, number, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(posts)
	pages := max(1, (total+size-1)/size)
	number = min(max(number, 1), pages)

	start := (number - 1) * size
	end := min(start+size, total)
	items := make([]models.Post, 0, end-start)
	items = append(items, posts[start:end]...)
	return Page{Items: items, Number: number, Size: size, Total: total, TotalPages: pages}
}

// Tags returns the distinct tags of all posts in first-seen order.
func Tags(posts []models.Post) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, p := range posts {
		for _, t := range p.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Neighbors selects the ordering used for prev/next links.
type Neighbors int

const (
	// NeighborsStorage uses the order of the index document, drafts included.
	NeighborsStorage Neighbors = iota
	// NeighborsDisplay uses the filtered, newest-first list order.
	NeighborsDisplay
)

// ParseNeighbors parses "storage" or "display". Empty means storage.
func ParseNeighbors(s string) (Neighbors, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "storage":
		return NeighborsStorage, nil
	case "display":
		return NeighborsDisplay, nil
	default:
		return 0, fmt.Errorf("unknown neighbor order %q", s)
	}
}

func (n Neighbors) String() string {
	if n == NeighborsDisplay {
		return "display"
	}
	return "storage"
}

// Detail is a looked-up post with its neighbors.
type Detail struct {
	Post models.Post  `json:"post"`
	Prev *models.Post `json:"prev"`
	Next *models.Post `json:"next"`
}

// Lookup finds the first post with slug in index order. In display mode the
// neighbors come from Filter(posts, c); a post that is not listed there has
// none.
func Lookup(posts []models.Post, slug string, mode Neighbors, c Criteria) (*Detail, error) {
	i := -1
	for j := range posts {
		if posts[j].Slug == slug {
			i = j
			break
		}
	}
	if i < 0 {
		return nil, apperr.NotFound("post with slug %q", slug)
	}

	d := &Detail{Post: posts[i].Clone()}
	list := posts
	pos := i
	if mode == NeighborsDisplay {
		list = Filter(posts, c)
		pos = -1
		for j := range list {
			if list[j].Filename == posts[i].Filename {
				pos = j
				break
			}
		}
		if pos < 0 {
			return d, nil
		}
	}
	if pos > 0 {
		prev := list[pos-1].Clone()
		d.Prev = &prev
	}
	if pos+1 < len(list) {
		next := list[pos+1].Clone()
		d.Next = &next
	}
	return d, nil
}
