package blog

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gistblog/internal/models"
	"github.com/starford/gistblog/internal/slug"
)

// PostInput is the caller's data for a new post. An empty Slug is derived
// from Title; an empty Status means published.
type PostInput struct {
	Title   string        `json:"title"`
	Slug    string        `json:"slug,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Tags    []string      `json:"tags,omitempty"`
	Status  models.Status `json:"status,omitempty"`
	Body    string        `json:"body"`
}

func (in PostInput) normalize() PostInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Summary = strings.TrimSpace(in.Summary)
	in.Tags = CleanTags(in.Tags)
	if in.Status == "" {
		in.Status = models.StatusPublished
	}
	return in
}

// Validate checks the input after normalization.
func (in PostInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.Slug, validation.By(slugForm)),
		validation.Field(&in.Status, validation.In(models.StatusPublished, models.StatusDraft)),
	)
}

// PostUpdate holds the fields to change. Nil fields keep their current value;
// a nil Body keeps the current body of the post file.
type PostUpdate struct {
	Title   *string        `json:"title,omitempty"`
	Slug    *string        `json:"slug,omitempty"`
	Summary *string        `json:"summary,omitempty"`
	Tags    *[]string      `json:"tags,omitempty"`
	Status  *models.Status `json:"status,omitempty"`
	Body    *string        `json:"body,omitempty"`
}

func (u PostUpdate) normalize() PostUpdate {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	u.Title = trim(u.Title)
	u.Slug = trim(u.Slug)
	u.Summary = trim(u.Summary)
	if u.Tags != nil {
		tags := CleanTags(*u.Tags)
		u.Tags = &tags
	}
	return u
}

// Validate checks the update after normalization.
func (u PostUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Title, validation.NilOrNotEmpty),
		validation.Field(&u.Slug, validation.NilOrNotEmpty, validation.By(slugForm)),
		validation.Field(&u.Status, validation.NilOrNotEmpty, validation.In(models.StatusPublished, models.StatusDraft)),
	)
}

// Empty reports whether the update changes nothing.
func (u PostUpdate) Empty() bool {
	return u.Title == nil && u.Slug == nil && u.Summary == nil && u.Tags == nil && u.Status == nil && u.Body == nil
}

func (u PostUpdate) apply(p models.Post) models.Post {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Slug != nil {
		p.Slug = *u.Slug
	}
	if u.Summary != nil {
		p.Summary = *u.Summary
	}
	if u.Tags != nil {
		p.Tags = append([]string{}, (*u.Tags)...)
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	return p
}

// CleanTags trims every tag and drops empty ones. Order and duplicates are kept.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SplitTags parses a comma-separated tag list as typed by a user.
func SplitTags(s string) []string {
	return CleanTags(strings.Split(s, ","))
}

var errSlugForm = errors.New("must contain only lowercase letters, digits, CJK characters and single hyphens")

func slugForm(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	default:
		return nil
	}
	if s != "" && slug.Slugify(s) != s {
		return errSlugForm
	}
	return nil
}
