package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mediastash-tg-bot/internal/ident"
	"mediastash-tg-bot/internal/pipeline"
	"mediastash-tg-bot/internal/storage"
)

// SeriesFlow collects series metadata, persists the series record, then
// goes straight into bulk-collecting the first batch of episode files.
// The early-persisted series is compensated if the flow never finishes.
func SeriesFlow() *Spec {
	steps := map[StepID]Step{}
	metaSteps(steps, stepCategory)

	steps[stepCategory] = Step{
		Prompt: "Is this a webseries or an anime?",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			cat := strings.ToLower(t)
			if cat != "webseries" && cat != "anime" {
				return "", Invalid("Reply with \"webseries\" or \"anime\".")
			}
			key := strings.ToUpper(cat)
			channelID, ok := d.Channels[key]
			if !ok {
				return "", fmt.Errorf("no channel configured for %s", key)
			}

			sr := &storage.Series{
				ID:          ident.ForTitle(cat, s.Draft.Title, s.Draft.Year),
				Title:       s.Draft.Title,
				Category:    cat,
				Year:        s.Draft.Year,
				Genres:      s.Draft.Genres,
				Description: s.Draft.Description,
				ChannelID:   channelID,
				OwnerID:     s.UserID,
			}
			if err := d.Store.CreateSeries(ctx, sr); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					_ = d.Bot.SendText(ctx, s.ChatID, fmt.Sprintf("This series already exists (%s). Use /addseason or /addepisode to extend it.", sr.ID))
					return Done, nil
				}
				return "", err
			}
			s.CreatedSeriesID = sr.ID
			s.Draft.Category = cat
			s.Draft.TargetID = sr.ID
			s.Draft.ChannelID = channelID
			return stepSeasonNumber, nil
		},
	}

	steps[stepSeasonNumber] = seasonNumberStep(func(sr *storage.Series, n int) error {
		if sr.Season(n) != nil {
			return Invalid("Season %d already exists.", n)
		}
		return nil
	})
	collectSteps(steps, true)

	return &Spec{
		Name:    "series creation",
		Command: "addseries",
		Start:   stepTitle,
		Steps:   steps,
		Compensate: func(ctx context.Context, d *Deps, s *Session) {
			if s.CreatedSeriesID == "" {
				return
			}
			if err := d.Store.DeleteSeries(ctx, s.CreatedSeriesID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				d.Log.Error().Err(err).Str("series", s.CreatedSeriesID).Msg("compensation failed")
			}
		},
	}
}

// AddSeasonFlow opens a new season on an existing series and
// bulk-ingests its episode files.
func AddSeasonFlow() *Spec {
	steps := map[StepID]Step{}
	steps[stepSeriesID] = seriesIDStep(stepSeasonNumber)
	steps[stepSeasonNumber] = seasonNumberStep(func(sr *storage.Series, n int) error {
		if sr.Season(n) != nil {
			return Invalid("Season %d already exists. Use /addepisode to extend it.", n)
		}
		return nil
	})
	// Season title is asked between the number and the file collection.
	steps[stepSeasonNumber] = withNext(steps[stepSeasonNumber], stepSeasonTitle)
	steps[stepSeasonTitle] = Step{
		Prompt: "Season title? Say \"skip\" for none.",
		Handle: func(_ context.Context, _ *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			if !strings.EqualFold(t, skipWord) {
				s.Draft.SeasonTitle = t
			}
			return stepCollect, nil
		},
	}
	collectSteps(steps, true)

	return &Spec{
		Name:    "season upload",
		Command: "addseason",
		Start:   stepSeriesID,
		Steps:   steps,
	}
}

// AddEpisodeFlow appends episode files to an existing season.
func AddEpisodeFlow() *Spec {
	steps := map[StepID]Step{}
	steps[stepSeriesID] = seriesIDStep(stepSeasonNumber)
	steps[stepSeasonNumber] = seasonNumberStep(func(sr *storage.Series, n int) error {
		if sr.Season(n) == nil {
			return Invalid("Season %d does not exist yet. Run /addseason first.", n)
		}
		return nil
	})
	collectSteps(steps, false)

	return &Spec{
		Name:    "episode upload",
		Command: "addepisode",
		Start:   stepSeriesID,
		Steps:   steps,
	}
}

// seriesIDStep asks for and validates an existing series id.
func seriesIDStep(next StepID) Step {
	return Step{
		Prompt: "Send the series id (the token from its share link).",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			sr, err := d.Store.Series(ctx, strings.ToLower(t))
			if errors.Is(err, storage.ErrNotFound) {
				return "", Invalid("No series with that id. Check the link token, or /cancel.")
			}
			if err != nil {
				return "", err
			}
			s.Draft.TargetID = sr.ID
			s.Draft.Category = sr.Category
			s.Draft.ChannelID = sr.ChannelID
			return next, nil
		},
	}
}

// seasonNumberStep asks for a season number; check enforces the
// per-flow existence rule against the current series record.
func seasonNumberStep(check func(sr *storage.Series, n int) error) Step {
	return Step{
		Prompt: "Which season? Send its number.",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			n, aerr := strconv.Atoi(t)
			if aerr != nil || n <= 0 {
				return "", Invalid("Send the season as a positive number, e.g. 1.")
			}
			sr, err := d.Store.Series(ctx, s.Draft.TargetID)
			if err != nil {
				return "", err
			}
			if err := check(sr, n); err != nil {
				return "", err
			}
			s.Batch = &pipeline.Batch{
				SeriesID:  s.Draft.TargetID,
				Season:    n,
				OwnerID:   s.UserID,
				OwnerChat: s.ChatID,
				ChannelID: s.Draft.ChannelID,
			}
			return stepCollect, nil
		},
	}
}

// withNext rewires a step to advance somewhere else on success.
func withNext(st Step, next StepID) Step {
	inner := st.Handle
	st.Handle = func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
		got, err := inner(ctx, d, s, ev)
		if err != nil {
			return got, err
		}
		return next, nil
	}
	return st
}

// collectSteps installs the bulk collection phase: files arrive one at
// a time, "done" closes the batch, unresolved items detour through the
// manual numbering step, then the pipeline uploads everything.
func collectSteps(steps map[StepID]Step, createSeason bool) {
	steps[stepCollect] = Step{
		Prompt: "Send the episode files one by one. Say \"done\" when finished.",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			if ev.File != nil {
				it := s.Batch.Add(*ev.File)
				if it.HasNumber {
					_ = d.Bot.SendText(ctx, s.ChatID, fmt.Sprintf("Queued %q as S%02dE%02d.", it.File.FileName, it.Season, it.Number))
				} else {
					_ = d.Bot.SendText(ctx, s.ChatID, fmt.Sprintf("Queued %q, episode number still unknown.", it.File.FileName))
				}
				return stepCollect, nil
			}
			if strings.EqualFold(strings.TrimSpace(ev.Text), "done") || ev.Command == "done" {
				if len(s.Batch.Items) == 0 {
					return "", Invalid("No files queued yet. Send at least one file, or /cancel.")
				}
				if unresolved := s.Batch.Unresolved(); len(unresolved) > 0 {
					var b strings.Builder
					b.WriteString("I could not number these files:\n")
					for _, name := range unresolved {
						fmt.Fprintf(&b, "- %s\n", name)
					}
					b.WriteString("Reply with one episode number per file, in the same order.")
					_ = d.Bot.SendText(ctx, s.ChatID, b.String())
					return stepManual, nil
				}
				return runIngest(ctx, d, s, createSeason)
			}
			return "", Invalid("Send a file, or \"done\" to finish.")
		},
	}

	steps[stepManual] = Step{
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			if rerr := s.Batch.ResolveManual(t); rerr != nil {
				return "", Invalid("%s Try again.", rerr.Error())
			}
			return runIngest(ctx, d, s, createSeason)
		},
	}
}

func runIngest(ctx context.Context, d *Deps, s *Session, createSeason bool) (StepID, error) {
	if createSeason {
		season := storage.Season{Number: s.Batch.Season, Title: s.Draft.SeasonTitle}
		if err := d.Store.AddSeason(ctx, s.Batch.SeriesID, season); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				_ = d.Bot.SendText(ctx, s.ChatID, fmt.Sprintf("Season %d already exists, nothing uploaded.", s.Batch.Season))
				return Done, nil
			}
			return "", err
		}
	}

	report := func(text string) { _ = d.Bot.SendText(ctx, s.ChatID, text) }
	sum := d.Uploader.Run(ctx, s.Batch, report)

	// The flow reached its completion step; the series must survive even
	// if individual items failed.
	s.CreatedSeriesID = ""

	msg := fmt.Sprintf("Upload finished: %d stored, %d failed.", sum.Succeeded, sum.Failed)
	if sum.Succeeded > 0 {
		msg += fmt.Sprintf("\nShare the series with:\n%s", deepLink(d.Bot.Username(), s.Batch.SeriesID))
	}
	_ = d.Bot.SendText(ctx, s.ChatID, msg)
	return Done, nil
}
