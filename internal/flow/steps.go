package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"mediastash-tg-bot/internal/storage"
)

// Step ids shared across the flow tables.
const (
	stepTitle        StepID = "title"
	stepYear         StepID = "year"
	stepGenres       StepID = "genres"
	stepDescription  StepID = "description"
	stepChannel      StepID = "channel"
	stepCategory     StepID = "category"
	stepFile         StepID = "file"
	stepSeriesID     StepID = "series"
	stepSeasonNumber StepID = "season"
	stepSeasonTitle  StepID = "season-title"
	stepCollect      StepID = "collect"
	stepManual       StepID = "manual"
	stepTarget       StepID = "target"
	stepField        StepID = "field"
	stepValue        StepID = "value"
	stepConfirm      StepID = "confirm"
)

const skipWord = "skip"

func textInput(ev Event) (string, error) {
	t := strings.TrimSpace(ev.Text)
	if t == "" {
		return "", Invalid("I need a text reply here. Try again, or /cancel.")
	}
	return t, nil
}

func yearInput(ev Event) (int, error) {
	t := strings.TrimSpace(ev.Text)
	y, err := strconv.Atoi(t)
	if err != nil || y < 1888 || y > 2100 {
		return 0, Invalid("Send the release year as a number, e.g. 2010.")
	}
	return y, nil
}

func splitGenres(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func deepLink(username, id string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", username, url.QueryEscape(id))
}

// metaSteps are the title/year/genres/description questions shared by
// the movie and series flows; after is the step that follows them.
func metaSteps(steps map[StepID]Step, after StepID) {
	steps[stepTitle] = Step{
		Prompt: "What is the title?",
		Handle: func(_ context.Context, _ *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			s.Draft.Title = t
			return stepYear, nil
		},
	}
	steps[stepYear] = Step{
		Prompt: "Release year?",
		Handle: func(_ context.Context, _ *Deps, s *Session, ev Event) (StepID, error) {
			y, err := yearInput(ev)
			if err != nil {
				return "", err
			}
			s.Draft.Year = y
			return stepGenres, nil
		},
	}
	steps[stepGenres] = Step{
		Prompt: "Genres, comma separated? Say \"skip\" for none.",
		Handle: func(_ context.Context, _ *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			if !strings.EqualFold(t, skipWord) {
				s.Draft.Genres = splitGenres(t)
			}
			return stepDescription, nil
		},
	}
	steps[stepDescription] = Step{
		Prompt: "Short description? Say \"skip\" for none.",
		Handle: func(_ context.Context, _ *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			if !strings.EqualFold(t, skipWord) {
				s.Draft.Description = t
			}
			return after, nil
		},
	}
}

func channelKeys(channels map[string]int64) string {
	keys := make([]string, 0, len(channels))
	for k := range channels {
		keys = append(keys, k)
	}
	return strings.Join(keys, ", ")
}

func lookupTarget(ctx context.Context, d *Deps, id string) (kind string, title string, err error) {
	mv, err := d.Store.Movie(ctx, id)
	if err == nil {
		return "movie", mv.Title, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", "", err
	}
	ep, err := d.Store.Episode(ctx, id)
	if err == nil {
		return "episode", ep.Title, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", "", err
	}
	sr, err := d.Store.Series(ctx, id)
	if err == nil {
		return "series", sr.Title, nil
	}
	return "", "", err
}
