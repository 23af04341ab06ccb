package ident

import (
	"net/url"
	"strings"
	"testing"
)

func TestForTitleDeterministic(t *testing.T) {
	a := ForTitle("movie", "Inception", 2010)
	for i := 0; i < 10; i++ {
		if got := ForTitle("movie", "Inception", 2010); got != a {
			t.Fatalf("call %d: got %q, want %q", i, got, a)
		}
	}
}

func TestForTitleShape(t *testing.T) {
	id := ForTitle("movie", "Inception", 2010)
	if !strings.HasPrefix(id, "movie-inception-2010-") {
		t.Fatalf("unexpected id shape: %q", id)
	}
	if len(id) > 64 {
		t.Fatalf("id exceeds start parameter limit: %d bytes", len(id))
	}
}

func TestForTitleDistinguishesInputs(t *testing.T) {
	base := ForTitle("movie", "Inception", 2010)
	others := []string{
		ForTitle("webseries", "Inception", 2010),
		ForTitle("movie", "Inception", 2011),
		ForTitle("movie", "Interstellar", 2010),
	}
	for i, o := range others {
		if o == base {
			t.Errorf("variant %d collides with base id %q", i, base)
		}
	}
}

func TestForTitleURLSafe(t *testing.T) {
	titles := []string{
		"Inception",
		"Spider-Man: No Way Home",
		"WALL·E",
		"  spaced   out  ",
		"日本語タイトル",
		strings.Repeat("very long title ", 10),
	}
	for _, title := range titles {
		id := ForTitle("movie", title, 2020)
		if len(id) > 64 {
			t.Errorf("ForTitle(%q): %d bytes, over limit", title, len(id))
		}
		if escaped := url.QueryEscape(id); escaped != id {
			t.Errorf("ForTitle(%q) = %q is not URL-safe", title, id)
		}
	}
}

func TestForTitleSameSlugDifferentTitle(t *testing.T) {
	// Both titles slugify to "heat"; the hash suffix must keep them apart.
	a := ForTitle("movie", "Heat", 1995)
	b := ForTitle("movie", "Heat!", 1995)
	if a[:len(a)-8] != b[:len(b)-8] {
		t.Fatalf("expected shared slug prefix: %q vs %q", a, b)
	}
	if a == b {
		t.Fatalf("distinct titles derived the same id %q", a)
	}
}

func TestForEpisode(t *testing.T) {
	seriesID := ForTitle("anime", "One Piece", 1999)
	got := ForEpisode(seriesID, 1, 7)
	want := seriesID + "-s01e07"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if ForEpisode(seriesID, 1, 7) != got {
		t.Fatal("episode id not stable")
	}
	if ForEpisode(seriesID, 2, 7) == got {
		t.Fatal("season not part of episode id")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Inception", "inception"},
		{"Spider-Man: No Way Home", "spider-man-no-way-home"},
		{"  A  B  ", "a-b"},
		{"...", ""},
		{"2001: A Space Odyssey", "2001-a-space-odyssey"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
