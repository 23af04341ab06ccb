package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediastash-tg-bot/internal/storage"
	"mediastash-tg-bot/internal/tg"
)

type fakeStore struct {
	episodes []storage.Episode
	failIDs  map[string]error
	uploads  map[int64]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{failIDs: map[string]error{}, uploads: map[int64]int{}}
}

func (s *fakeStore) CreateEpisode(_ context.Context, e *storage.Episode) error {
	if err, ok := s.failIDs[e.ID]; ok {
		return err
	}
	for _, have := range s.episodes {
		if have.ID == e.ID {
			return storage.ErrConflict
		}
	}
	s.episodes = append(s.episodes, *e)
	return nil
}

func (s *fakeStore) AddUploads(_ context.Context, userID int64, n int) error {
	s.uploads[userID] += n
	return nil
}

type fakeRelayer struct {
	calls   []int // source message ids in call order
	nextID  int
	errFor  map[int]error // source message id -> error
	rlCount map[int]int   // remaining rate-limit responses per source message
}

func newFakeRelayer() *fakeRelayer {
	return &fakeRelayer{errFor: map[int]error{}, rlCount: map[int]int{}}
}

func (r *fakeRelayer) Relay(_ context.Context, _, _ int64, messageID int) (int, error) {
	r.calls = append(r.calls, messageID)
	if n := r.rlCount[messageID]; n > 0 {
		r.rlCount[messageID] = n - 1
		return 0, &tg.RateLimitedError{RetryAfter: time.Second}
	}
	if err, ok := r.errFor[messageID]; ok {
		return 0, err
	}
	r.nextID++
	return 1000 + r.nextID, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func uploader(st *fakeStore, rl *fakeRelayer) *Uploader {
	return &Uploader{
		Store:  st,
		Bot:    rl,
		Retry:  tg.RetryPolicy{MaxAttempts: 3, DefaultWait: time.Second, Sleep: noSleep},
		Pacing: time.Second,
		Sleep:  noSleep,
		Log:    zerolog.Nop(),
	}
}

func batchOf(names ...string) *Batch {
	b := &Batch{SeriesID: "anime-show-2020-deadbeef", Season: 1, OwnerID: 7, ChannelID: -100}
	for i, name := range names {
		b.Add(FileRef{ChatID: 5, MessageID: 10 + i, FileName: name})
	}
	return b
}

func TestBatchSortAscending(t *testing.T) {
	// Submission order S01E02, S01E01, S01E03 must upload as E01, E02, E03.
	b := batchOf("Show S01E02.mkv", "Show.S01E01.mkv", "Show S01E03.mkv")
	st := newFakeStore()
	rl := newFakeRelayer()
	sum := uploader(st, rl).Run(context.Background(), b, nil)

	if sum.Succeeded != 3 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	var nums []int
	for _, e := range st.episodes {
		nums = append(nums, e.Number)
	}
	if fmt.Sprint(nums) != "[1 2 3]" {
		t.Fatalf("persisted order = %v, want [1 2 3]", nums)
	}
	// E01 came from the second submitted file (message id 11).
	if rl.calls[0] != 11 || rl.calls[1] != 10 || rl.calls[2] != 12 {
		t.Fatalf("relay order = %v", rl.calls)
	}
}

func TestManualNumbering(t *testing.T) {
	b := batchOf("clip.mkv")
	if got := b.Unresolved(); len(got) != 1 || got[0] != "clip.mkv" {
		t.Fatalf("unresolved = %v", got)
	}
	if err := b.ResolveManual("5"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	it := b.Items[0]
	if !it.HasNumber || it.Number != 5 {
		t.Fatalf("item = %+v", it)
	}
	if it.Title != "Episode 5" {
		t.Fatalf("title = %q, want %q", it.Title, "Episode 5")
	}
}

func TestManualNumberingRejectsBadReply(t *testing.T) {
	tests := []struct {
		reply string
	}{
		{""}, {"1 2"}, {"x"}, {"0"}, {"-3"},
	}
	for _, tt := range tests {
		b := batchOf("clip.mkv")
		if err := b.ResolveManual(tt.reply); err == nil {
			t.Errorf("ResolveManual(%q): expected error", tt.reply)
		}
		if b.Items[0].HasNumber {
			t.Errorf("ResolveManual(%q): item must stay unresolved", tt.reply)
		}
	}
}

func TestManualNumberingMixedBatch(t *testing.T) {
	b := batchOf("Show S01E02.mkv", "clip.mkv", "other.mkv")
	if err := b.ResolveManual("7 4"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if b.Items[1].Number != 7 || b.Items[2].Number != 4 {
		t.Fatalf("numbers assigned out of submission order: %+v", b.Items)
	}
}

func TestRateLimitRetriesSameItem(t *testing.T) {
	b := batchOf("Show S01E01.mkv", "Show S01E02.mkv")
	st := newFakeStore()
	rl := newFakeRelayer()
	rl.rlCount[10] = 2 // first file throttled twice before succeeding

	sum := uploader(st, rl).Run(context.Background(), b, nil)
	if sum.Succeeded != 2 || sum.Failed != 0 {
		t.Fatalf("summary = %+v; rate limit must not count as failure", sum)
	}
	// Message 10 relayed three times (two throttles + success), never dropped.
	attempts := 0
	for _, id := range rl.calls {
		if id == 10 {
			attempts++
		}
	}
	if attempts != 3 {
		t.Fatalf("attempts for throttled item = %d, want 3", attempts)
	}
}

func TestPermanentFailureContinuesBatch(t *testing.T) {
	b := batchOf("Show S01E01.mkv", "Show S01E02.mkv", "Show S01E03.mkv")
	st := newFakeStore()
	rl := newFakeRelayer()
	rl.errFor[11] = errors.New("file gone") // E02's source message

	var reports []string
	sum := uploader(st, rl).Run(context.Background(), b, func(s string) { reports = append(reports, s) })
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(st.episodes) != 2 {
		t.Fatalf("persisted %d episodes, want 2", len(st.episodes))
	}
	found := false
	for _, r := range reports {
		if strings.Contains(r, "skipped") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no per-item failure notice in %v", reports)
	}
}

func TestDuplicateNumberSurfacesAsConflict(t *testing.T) {
	// Two files resolve to the same episode number; the pipeline does not
	// deduplicate, the second insert hits the unique index.
	b := batchOf("Show S01E01.mkv", "Other.S01E01.mkv")
	st := newFakeStore()
	rl := newFakeRelayer()

	var reports []string
	sum := uploader(st, rl).Run(context.Background(), b, func(s string) { reports = append(reports, s) })
	if sum.Succeeded != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	found := false
	for _, r := range reports {
		if strings.Contains(r, "already exists") {
			found = true
		}
	}
	if !found {
		t.Fatalf("conflict not reported: %v", reports)
	}
}

func TestProgressEveryFive(t *testing.T) {
	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("Show S01E%02d.mkv", i+1)
	}
	b := batchOf(names...)
	st := newFakeStore()
	rl := newFakeRelayer()

	var progress []string
	uploader(st, rl).Run(context.Background(), b, func(s string) {
		if strings.HasPrefix(s, "Uploaded") {
			progress = append(progress, s)
		}
	})
	want := []string{"Uploaded 5/12...", "Uploaded 10/12..."}
	if len(progress) != len(want) || progress[0] != want[0] || progress[1] != want[1] {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
}

func TestOperatorCounterIncrement(t *testing.T) {
	b := batchOf("Show S01E01.mkv", "Show S01E02.mkv")
	st := newFakeStore()
	rl := newFakeRelayer()
	uploader(st, rl).Run(context.Background(), b, nil)
	if st.uploads[7] != 2 {
		t.Fatalf("operator uploads = %d, want 2", st.uploads[7])
	}
}
