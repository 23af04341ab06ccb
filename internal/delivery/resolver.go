// Package delivery maps opaque deep-link tokens back to stored catalog
// entries and relays the matching artifacts to the requester.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediastash-tg-bot/internal/storage"
	"mediastash-tg-bot/internal/tg"
)

// Store is the read-only slice of persistence resolution needs.
type Store interface {
	Movie(ctx context.Context, id string) (*storage.Movie, error)
	Episode(ctx context.Context, id string) (*storage.Episode, error)
	Series(ctx context.Context, id string) (*storage.Series, error)
	SeasonEpisodes(ctx context.Context, seriesID string, season int) ([]storage.Episode, error)
}

// Transport is the outbound surface resolution needs.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	PresentChoice(ctx context.Context, chatID int64, text string, rows [][]tg.Choice) error
	EditChoice(ctx context.Context, chatID int64, messageID int, text string, rows [][]tg.Choice) error
	Relay(ctx context.Context, toChat, fromChat int64, messageID int) (int, error)
}

type Resolver struct {
	Store  Store
	Bot    Transport
	Retry  tg.RetryPolicy
	Pacing time.Duration
	// Sleep is replaceable in tests. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   zerolog.Logger
}

// Resolve consumes a deep-link token: percent-decoded, then matched as
// movie id, episode id, series id and finally lowercased series id.
// Movie and episode hits relay the single artifact; a series hit
// presents the season chooser.
func (r *Resolver) Resolve(ctx context.Context, chatID int64, token string) error {
	if decoded, err := url.QueryUnescape(token); err == nil {
		token = decoded
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return r.Bot.SendText(ctx, chatID, "Nothing to look up.")
	}

	if mv, err := r.Store.Movie(ctx, token); err == nil {
		return r.relayOne(ctx, chatID, mv.Artifact, mv.Title)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if ep, err := r.Store.Episode(ctx, token); err == nil {
		caption := fmt.Sprintf("%s (S%02dE%02d)", ep.Title, ep.Season, ep.Number)
		return r.relayOne(ctx, chatID, ep.Artifact, caption)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	s, err := r.Store.Series(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		// Ids are minted lowercase; a forwarded link may have lost casing.
		s, err = r.Store.Series(ctx, strings.ToLower(token))
	}
	if errors.Is(err, storage.ErrNotFound) {
		return r.Bot.SendText(ctx, chatID, "Nothing found for that link. It may have been removed.")
	}
	if err != nil {
		return err
	}

	if len(s.Seasons) == 0 {
		return r.Bot.SendText(ctx, chatID, fmt.Sprintf("%s has no seasons yet.", s.Title))
	}
	text := fmt.Sprintf("%s (%d)\nPick a season:", s.Title, s.Year)
	return r.Bot.PresentChoice(ctx, chatID, text, tg.SeasonChooser(s))
}

// HandleSeasonChoice consumes a "season:<seriesID>:<number>" callback
// payload and relays every episode of that season in ascending order.
// A failed relay is reported and the rest still deliver. chooserMsgID
// is the chooser message, edited into the intro line; zero means the
// chooser is gone and the intro is sent as a fresh message.
func (r *Resolver) HandleSeasonChoice(ctx context.Context, chatID int64, chooserMsgID int, data string) error {
	seriesID, season, err := ParseSeasonToken(data)
	if err != nil {
		return err
	}

	s, err := r.Store.Series(ctx, seriesID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.Bot.SendText(ctx, chatID, "That series is no longer available.")
	}
	if err != nil {
		return err
	}

	eps, err := r.Store.SeasonEpisodes(ctx, seriesID, season)
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		return r.Bot.SendText(ctx, chatID, fmt.Sprintf("Season %d of %s has no episodes yet.", season, s.Title))
	}

	intro := fmt.Sprintf("%s, season %d: %d episode(s) coming up.", s.Title, season, len(eps))
	if chooserMsgID != 0 {
		if err := r.Bot.EditChoice(ctx, chatID, chooserMsgID, intro, nil); err != nil {
			return err
		}
	} else if err := r.Bot.SendText(ctx, chatID, intro); err != nil {
		return err
	}

	delivered := 0
	for i, ep := range eps {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && r.Pacing > 0 {
			if err := r.sleep(ctx, r.Pacing); err != nil {
				break
			}
		}
		art := ep.Artifact
		err := r.Retry.Do(ctx, func() error {
			_, err := r.Bot.Relay(ctx, chatID, art.ChatID, art.MessageID)
			return err
		})
		if err != nil {
			r.Log.Warn().Err(err).Str("episode", ep.ID).Msg("relay failed")
			_ = r.Bot.SendText(ctx, chatID, fmt.Sprintf("Episode %d could not be delivered.", ep.Number))
			continue
		}
		delivered++
	}
	return r.Bot.SendText(ctx, chatID, fmt.Sprintf("%d/%d relayed.", delivered, len(eps)))
}

// ParseSeasonToken splits the composite chooser payload.
func ParseSeasonToken(data string) (seriesID string, season int, err error) {
	rest, ok := strings.CutPrefix(data, "season:")
	if !ok {
		return "", 0, fmt.Errorf("not a season token: %q", data)
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return "", 0, fmt.Errorf("malformed season token: %q", data)
	}
	n, aerr := strconv.Atoi(rest[idx+1:])
	if aerr != nil || n <= 0 {
		return "", 0, fmt.Errorf("malformed season number in %q", data)
	}
	return rest[:idx], n, nil
}

func (r *Resolver) relayOne(ctx context.Context, chatID int64, art storage.ArtifactRef, title string) error {
	err := r.Retry.Do(ctx, func() error {
		_, err := r.Bot.Relay(ctx, chatID, art.ChatID, art.MessageID)
		return err
	})
	if err != nil {
		r.Log.Warn().Err(err).Str("title", title).Msg("relay failed")
		return r.Bot.SendText(ctx, chatID, fmt.Sprintf("Could not deliver %q right now, try the link again later.", title))
	}
	return nil
}

func (r *Resolver) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
