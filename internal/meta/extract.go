// Package meta infers season and episode numbering from file names.
// Rules are tried in order, first match wins.
package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Metadata is the numbering inferred from a single file name. Episode is
// nil when no rule produced a number; the caller then has to ask for
// manual numbering.
type Metadata struct {
	Season  int
	Episode *int
}

// Rule matches one naming convention. TryMatch reports whether the rule
// applies and, if so, the metadata it extracted.
type Rule struct {
	Name string
	re   *regexp.Regexp
	eval func(m []string) Metadata
}

func (r Rule) TryMatch(name string) (Metadata, bool) {
	m := r.re.FindStringSubmatch(name)
	if m == nil {
		return Metadata{}, false
	}
	return r.eval(m), true
}

// Rules, most specific first. The fallback digit-run rule is last so a
// "S01E02" marker is never mistaken for a bare number.
var Rules = []Rule{
	{
		Name: "season-episode",
		re:   regexp.MustCompile(`(?i)s(\d{1,2})[ ._-]?e(\d{1,3})`),
		eval: func(m []string) Metadata {
			return Metadata{Season: atoi(m[1]), Episode: intPtr(atoi(m[2]))}
		},
	},
	{
		Name: "compact",
		re:   regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,3})\b`),
		eval: func(m []string) Metadata {
			return Metadata{Season: atoi(m[1]), Episode: intPtr(atoi(m[2]))}
		},
	},
	{
		Name: "episode-marker",
		re:   regexp.MustCompile(`(?i)\b(?:episode|ep|e)[ ._-]?(\d{1,3})\b`),
		eval: func(m []string) Metadata {
			return Metadata{Season: 1, Episode: intPtr(atoi(m[1]))}
		},
	},
	{
		Name: "digit-run",
		re:   regexp.MustCompile(`(\d{1,4})`),
		eval: func(m []string) Metadata {
			return Metadata{Season: 1, Episode: intPtr(atoi(m[1]))}
		},
	},
}

// Extract runs the rule list against the file name (extension stripped).
// When nothing matches, the result has Season 1 and a nil Episode.
func Extract(filename string) Metadata {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, r := range Rules {
		if md, ok := r.TryMatch(name); ok {
			if md.Season <= 0 {
				md.Season = 1
			}
			return md
		}
	}
	return Metadata{Season: 1}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func intPtr(n int) *int { return &n }
