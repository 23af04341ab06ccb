// Package pipeline turns a collected batch of pending files into
// persisted, channel-stored episodes. Uploads run strictly one at a
// time with a pacing delay; rate-limit signals retry the same item,
// any other error fails that item alone and the batch continues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediastash-tg-bot/internal/ident"
	"mediastash-tg-bot/internal/meta"
	"mediastash-tg-bot/internal/storage"
	"mediastash-tg-bot/internal/tg"
)

// FileRef identifies the operator message that carries a pending file.
type FileRef struct {
	ChatID    int64
	MessageID int
	FileName  string
}

// Item is one pending file with the numbering inferred (or later
// resolved manually) for it.
type Item struct {
	File      FileRef
	Season    int
	Number    int
	HasNumber bool
	Title     string
}

// Batch accumulates pending files for one series season during the
// collection phase.
type Batch struct {
	SeriesID  string
	Season    int
	OwnerID   int64
	OwnerChat int64
	ChannelID int64
	Items     []Item
}

// Add runs metadata extraction on the file name and appends the pending
// item. Files without any recognizable number stay unresolved until
// ResolveManual supplies one.
func (b *Batch) Add(f FileRef) Item {
	md := meta.Extract(f.FileName)
	it := Item{File: f, Season: b.Season}
	if b.Season == 0 {
		it.Season = md.Season
	}
	if md.Episode != nil {
		it.Number = *md.Episode
		it.HasNumber = true
	}
	b.Items = append(b.Items, it)
	return it
}

// Unresolved returns the file names still lacking an episode number, in
// submission order.
func (b *Batch) Unresolved() []string {
	var names []string
	for _, it := range b.Items {
		if !it.HasNumber {
			names = append(names, it.File.FileName)
		}
	}
	return names
}

// ResolveManual consumes a single reply holding one integer per
// unresolved item, in submission order. The reply is rejected unless
// its count and validity match exactly.
func (b *Batch) ResolveManual(reply string) error {
	fields := strings.Fields(strings.ReplaceAll(reply, ",", " "))
	want := len(b.Unresolved())
	if len(fields) != want {
		return fmt.Errorf("expected %d number(s), got %d", want, len(fields))
	}
	nums := make([]int, 0, want)
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n <= 0 {
			return fmt.Errorf("%q is not a valid episode number", f)
		}
		nums = append(nums, n)
	}
	i := 0
	for idx := range b.Items {
		if b.Items[idx].HasNumber {
			continue
		}
		b.Items[idx].Number = nums[i]
		b.Items[idx].HasNumber = true
		if b.Items[idx].Title == "" {
			b.Items[idx].Title = fmt.Sprintf("Episode %d", nums[i])
		}
		i++
	}
	return nil
}

// Sort orders items ascending by episode number. Duplicate numbers are
// kept; the unique index rejects the second one at persist time.
func (b *Batch) Sort() {
	sort.SliceStable(b.Items, func(i, j int) bool { return b.Items[i].Number < b.Items[j].Number })
}

// Relayer re-sends a stored file by reference. *tg.Client satisfies it.
type Relayer interface {
	Relay(ctx context.Context, toChat, fromChat int64, messageID int) (int, error)
}

// Store is the slice of persistence the uploader needs.
type Store interface {
	CreateEpisode(ctx context.Context, e *storage.Episode) error
	AddUploads(ctx context.Context, userID int64, n int) error
}

type Summary struct {
	Succeeded int
	Failed    int
}

// Uploader executes the resolution-and-upload phase of a batch.
type Uploader struct {
	Store  Store
	Bot    Relayer
	Retry  tg.RetryPolicy
	Pacing time.Duration
	// Sleep is replaceable in tests. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   zerolog.Logger
}

const progressEvery = 5

// Run uploads the batch sequentially and persists one episode per
// successful item. report receives progress lines and per-item failure
// notices; the final summary is returned to the caller.
func (u *Uploader) Run(ctx context.Context, b *Batch, report func(string)) Summary {
	if report == nil {
		report = func(string) {}
	}
	b.Sort()

	var sum Summary
	total := len(b.Items)
	for i, it := range b.Items {
		if ctx.Err() != nil {
			sum.Failed += total - i
			break
		}
		if i > 0 && u.Pacing > 0 {
			if err := u.sleep(ctx, u.Pacing); err != nil {
				sum.Failed += total - i
				break
			}
		}

		var storedID int
		err := u.Retry.Do(ctx, func() error {
			id, err := u.Bot.Relay(ctx, b.ChannelID, it.File.ChatID, it.File.MessageID)
			if err == nil {
				storedID = id
			}
			return err
		})
		if err != nil {
			sum.Failed++
			u.Log.Warn().Err(err).Str("file", it.File.FileName).Msg("upload failed")
			report(fmt.Sprintf("Failed to store %q: episode %d skipped.", it.File.FileName, it.Number))
			continue
		}

		ep := &storage.Episode{
			ID:       ident.ForEpisode(b.SeriesID, it.Season, it.Number),
			SeriesID: b.SeriesID,
			Season:   it.Season,
			Number:   it.Number,
			Title:    it.Title,
			Artifact: storage.ArtifactRef{ChatID: b.ChannelID, MessageID: storedID},
		}
		if ep.Title == "" {
			ep.Title = fmt.Sprintf("Episode %d", it.Number)
		}
		if err := u.Store.CreateEpisode(ctx, ep); err != nil {
			sum.Failed++
			if errors.Is(err, storage.ErrConflict) {
				report(fmt.Sprintf("Episode %d already exists, %q skipped.", it.Number, it.File.FileName))
			} else {
				u.Log.Error().Err(err).Str("episode", ep.ID).Msg("persist failed")
				report(fmt.Sprintf("Could not save episode %d (%q).", it.Number, it.File.FileName))
			}
			continue
		}

		sum.Succeeded++
		if sum.Succeeded%progressEvery == 0 {
			report(fmt.Sprintf("Uploaded %d/%d...", sum.Succeeded, total))
		}
	}

	if sum.Succeeded > 0 {
		if err := u.Store.AddUploads(ctx, b.OwnerID, sum.Succeeded); err != nil {
			u.Log.Warn().Err(err).Int64("operator", b.OwnerID).Msg("counter update failed")
		}
	}
	return sum
}

func (u *Uploader) sleep(ctx context.Context, d time.Duration) error {
	if u.Sleep != nil {
		return u.Sleep(ctx, d)
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
