// Package ident derives the stable identifiers used both as storage keys
// and as deep-link payloads. Derivation is pure: the same inputs always
// produce the same token, so a link shared once keeps resolving for as
// long as the record exists. Uniqueness is not enforced here; the storage
// layer's unique indexes reject collisions.
package ident

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Namespace for the hash suffix. Fixed so derivation stays stable across
// processes and deployments.
var namespace = uuid.MustParse("2b1e7c5a-9d34-4f6e-8a17-c0d8b3a45e91")

const maxSlugLen = 32

// ForTitle derives the id for a movie or a series from its category tag,
// display title and release year. The token is lowercase, URL-safe and
// fits inside a Telegram start parameter (64 bytes).
func ForTitle(category, title string, year int) string {
	slug := Slugify(title)
	if slug == "" {
		slug = "untitled"
	}
	return fmt.Sprintf("%s-%s-%d-%s", strings.ToLower(category), slug, year, suffix(category, title, year))
}

// ForEpisode derives a globally unique episode id from the parent series
// id plus the season and episode numbers.
func ForEpisode(seriesID string, season, episode int) string {
	return fmt.Sprintf("%s-s%02de%02d", seriesID, season, episode)
}

// Slugify lowercases the title and collapses every non-alphanumeric run
// into a single dash, truncated to keep the full token inside the deep
// link length limit.
func Slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	return s
}

// suffix hashes the raw inputs so two distinct titles that slugify to the
// same string still derive distinct ids.
func suffix(category, title string, year int) string {
	key := fmt.Sprintf("%s\x00%s\x00%d", strings.ToLower(category), strings.ToLower(strings.TrimSpace(title)), year)
	sum := uuid.NewSHA1(namespace, []byte(key))
	return strings.ReplaceAll(sum.String(), "-", "")[:8]
}
