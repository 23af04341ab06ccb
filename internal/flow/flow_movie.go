package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediastash-tg-bot/internal/ident"
	"mediastash-tg-bot/internal/storage"
)

// MovieFlow collects title, year, genres, description and the target
// channel, then stores a single video file as one movie record.
func MovieFlow() *Spec {
	steps := map[StepID]Step{}
	metaSteps(steps, stepChannel)

	steps[stepChannel] = Step{
		Prompt: "Which channel should store it? Reply with the channel key, e.g. MOVIES.",
		Handle: func(_ context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			t, err := textInput(ev)
			if err != nil {
				return "", err
			}
			key := strings.ToUpper(t)
			id, ok := d.Channels[key]
			if !ok {
				return "", Invalid("Unknown channel %q. Options: %s.", t, channelKeys(d.Channels))
			}
			s.Draft.ChannelKey = key
			s.Draft.ChannelID = id
			return stepFile, nil
		},
	}

	steps[stepFile] = Step{
		Prompt: "Now send the movie as a video or document file.",
		Handle: func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error) {
			if ev.File == nil {
				return "", Invalid("That is not a file. Send the movie as a video or document.")
			}

			var storedID int
			err := d.Retry.Do(ctx, func() error {
				id, rerr := d.Bot.Relay(ctx, s.Draft.ChannelID, ev.File.ChatID, ev.File.MessageID)
				if rerr == nil {
					storedID = id
				}
				return rerr
			})
			if err != nil {
				return "", fmt.Errorf("storing movie file: %w", err)
			}

			mv := &storage.Movie{
				ID:          ident.ForTitle("movie", s.Draft.Title, s.Draft.Year),
				Title:       s.Draft.Title,
				Year:        s.Draft.Year,
				Genres:      s.Draft.Genres,
				Description: s.Draft.Description,
				Category:    "movie",
				Artifact:    storage.ArtifactRef{ChatID: s.Draft.ChannelID, MessageID: storedID},
				OwnerID:     s.UserID,
				Status:      "ready",
			}
			if err := d.Store.CreateMovie(ctx, mv); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					_ = d.Bot.SendText(ctx, s.ChatID, fmt.Sprintf("A movie with this title and year already exists (%s).", mv.ID))
					return Done, nil
				}
				return "", err
			}
			if err := d.Store.AddUploads(ctx, s.UserID, 1); err != nil {
				d.Log.Warn().Err(err).Int64("operator", s.UserID).Msg("counter update failed")
			}
			_ = d.Bot.SendText(ctx, s.ChatID, fmt.Sprintf("Stored %q. Share it with:\n%s", mv.Title, deepLink(d.Bot.Username(), mv.ID)))
			return Done, nil
		},
	}

	return &Spec{
		Name:    "movie upload",
		Command: "addmovie",
		Start:   stepTitle,
		Steps:   steps,
	}
}
