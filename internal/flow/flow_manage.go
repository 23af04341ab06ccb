package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediastash-tg-bot/internal/storage"
	"mediastash-tg-bot/internal/tg"
)

// EditFlow changes one metadata field of a movie or series. The id is
// deliberately preserved so previously shared deep links keep working.
func EditFlow() *Spec {
	steps := map[StepID]Step{}

	steps[stepTarget] = Step{
		Prompt: "Send the id of the movie or series to edit.",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			id := strings.ToLower(t)
			kind, title, err := lookupTarget(ctx, d, id)
			if errors.Is(err, storage.ErrNotFound) {
				return "", Invalid("Nothing in the catalog with that id. Try again, or /cancel.")
			}
			if err != nil {
				return "", err
			}
			if kind == "episode" {
				return "", Invalid("Episodes cannot be edited directly; edit their series instead.")
			}
			s.Draft.TargetID = id
			s.Draft.TargetKind = kind
			if err := d.Bot.PresentChoice(ctx, s.ChatID, fmt.Sprintf("Editing %s %q. What should change?", kind, title), tg.FieldChooser()); err != nil {
				return "", err
			}
			return stepField, nil
		},
	}

	steps[stepField] = Step{
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			field := strings.TrimPrefix(ev.Callback, "field:")
			if ev.Callback == "" {
				field = strings.ToLower(strings.TrimSpace(ev.Text))
			}
			switch field {
			case "title", "year", "genres", "description":
				s.Draft.Field = field
			default:
				return "", Invalid("Pick one of: title, year, genres, description.")
			}
			_ = d.Bot.SendText(ctx, s.ChatID, fmt.Sprintf("Send the new %s.", s.Draft.Field))
			return stepValue, nil
		},
	}

	steps[stepValue] = Step{
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			if err := applyEdit(ctx, d, s, ev, t); err != nil {
				return "", err
			}
			_ = d.Bot.SendText(ctx, s.ChatID, "Updated. The share link is unchanged.")
			return Done, nil
		},
	}

	return &Spec{
		Name:    "edit",
		Command: "edit",
		Start:   stepTarget,
		Steps:   steps,
	}
}

func applyEdit(ctx context.Context, d *Deps, s *Session, ev Event, value string) error {
	var year int
	var genres []string
	switch s.Draft.Field {
	case "year":
		y, err := yearInput(ev)
		if err != nil {
			return err
		}
		year = y
	case "genres":
		genres = splitGenres(value)
	}

	switch s.Draft.TargetKind {
	case "movie":
		mv, err := d.Store.Movie(ctx, s.Draft.TargetID)
		if err != nil {
			return err
		}
		switch s.Draft.Field {
		case "title":
			mv.Title = value
		case "year":
			mv.Year = year
		case "genres":
			mv.Genres = genres
		case "description":
			mv.Description = value
		}
		return d.Store.UpdateMovie(ctx, mv)
	case "series":
		sr, err := d.Store.Series(ctx, s.Draft.TargetID)
		if err != nil {
			return err
		}
		switch s.Draft.Field {
		case "title":
			sr.Title = value
		case "year":
			sr.Year = year
		case "genres":
			sr.Genres = genres
		case "description":
			sr.Description = value
		}
		return d.Store.UpdateSeries(ctx, sr)
	default:
		return fmt.Errorf("%w: edit target %q", ErrUnexpectedState, s.Draft.TargetKind)
	}
}

// DeleteFlow removes a movie, an episode or a whole series (episodes
// included) after an explicit confirmation.
func DeleteFlow() *Spec {
	steps := map[StepID]Step{}

	steps[stepTarget] = Step{
		Prompt: "Send the id of the movie, episode or series to delete.",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			id := strings.ToLower(t)
			kind, title, err := lookupTarget(ctx, d, id)
			if errors.Is(err, storage.ErrNotFound) {
				return "", Invalid("Nothing in the catalog with that id. Try again, or /cancel.")
			}
			if err != nil {
				return "", err
			}
			s.Draft.TargetID = id
			s.Draft.TargetKind = kind
			warn := fmt.Sprintf("Delete %s %q? This cannot be undone.", kind, title)
			if kind == "series" {
				warn = fmt.Sprintf("Delete series %q and every stored episode? This cannot be undone.", title)
			}
			if err := d.Bot.PresentChoice(ctx, s.ChatID, warn, tg.ConfirmChooser()); err != nil {
				return "", err
			}
			return stepConfirm, nil
		},
	}

	steps[stepConfirm] = Step{
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			answer := ev.Callback
			if answer == "" {
				answer = "confirm:" + strings.ToLower(strings.TrimSpace(ev.Text))
			}
			switch answer {
			case "confirm:no":
				_ = d.Bot.SendText(ctx, s.ChatID, "Kept, nothing deleted.")
				return Done, nil
			case "confirm:yes":
			default:
				return "", Invalid("Answer yes or no.")
			}

			var err error
			switch s.Draft.TargetKind {
			case "movie":
				err = d.Store.DeleteMovie(ctx, s.Draft.TargetID)
			case "episode":
				err = d.Store.DeleteEpisode(ctx, s.Draft.TargetID)
			case "series":
				err = d.Store.DeleteSeries(ctx, s.Draft.TargetID)
			default:
				err = fmt.Errorf("%w: delete target %q", ErrUnexpectedState, s.Draft.TargetKind)
			}
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return "", err
			}
			_ = d.Bot.SendText(ctx, s.ChatID, "Deleted. Its share link now resolves to nothing.")
			return Done, nil
		},
	}

	return &Spec{
		Name:    "delete",
		Command: "delete",
		Start:   stepTarget,
		Steps:   steps,
	}
}

// FindFlow answers a single id lookup with a catalog summary.
func FindFlow() *Spec {
	steps := map[StepID]Step{}

	steps[stepTarget] = Step{
		Prompt: "Send the id to look up.",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			id := strings.ToLower(t)
			summary, err := describe(ctx, d, id)
			if errors.Is(err, storage.ErrNotFound) {
				_ = d.Bot.SendText(ctx, s.ChatID, "Nothing in the catalog with that id.")
				return Done, nil
			}
			if err != nil {
				return "", err
			}
			_ = d.Bot.SendText(ctx, s.ChatID, summary+"\n"+deepLink(d.Bot.Username(), id))
			return Done, nil
		},
	}

	return &Spec{
		Name:    "find",
		Command: "find",
		Start:   stepTarget,
		Steps:   steps,
	}
}

func describe(ctx context.Context, d *Deps, id string) (string, error) {
	mv, err := d.Store.Movie(ctx, id)
	if err == nil {
		return fmt.Sprintf("Movie: %s (%d)\nGenres: %s", mv.Title, mv.Year, strings.Join(mv.Genres, ", ")), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	ep, err := d.Store.Episode(ctx, id)
	if err == nil {
		return fmt.Sprintf("Episode: %s (S%02dE%02d of %s)", ep.Title, ep.Season, ep.Number, ep.SeriesID), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	sr, err := d.Store.Series(ctx, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Series (%s): %s (%d)\nGenres: %s\nSeasons: %d",
		sr.Category, sr.Title, sr.Year, strings.Join(sr.Genres, ", "), len(sr.Seasons)), nil
}
