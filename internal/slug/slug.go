// Package slug derives URL-safe identifiers and post filenames from titles.
package slug

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Slugify lowercases title, drops everything except ASCII letters and digits,
// Han characters, whitespace and hyphens, then turns whitespace runs into a
// single hyphen and collapses repeated hyphens. It does not guarantee
// uniqueness.
func Slugify(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	pendingSpace := false
	lastHyphen := false
	emit := func(r rune) {
		if pendingSpace {
			pendingSpace = false
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if r == '-' {
			if lastHyphen {
				return
			}
			lastHyphen = true
		} else {
			lastHyphen = false
		}
		b.WriteRune(r)
	}

	for _, r := range strings.TrimSpace(strings.ToLower(title)) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case r == '-', r >= 'a' && r <= 'z', r >= '0' && r <= '9', unicode.Is(unicode.Han, r):
			emit(r)
		}
	}
	// Whitespace left behind by stripped characters still becomes a hyphen.
	if pendingSpace && !lastHyphen {
		b.WriteByte('-')
	}
	return b.String()
}

// BuildFilename returns YYYY-MM-DD--slug.md using the UTC date of t.
func BuildFilename(t time.Time, slug string) string {
	u := t.UTC()
	return fmt.Sprintf("%04d-%02d-%02d--%s.md", u.Year(), int(u.Month()), u.Day(), slug)
}
