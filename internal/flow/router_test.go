package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mediastash-tg-bot/internal/delivery"
	"mediastash-tg-bot/internal/ident"
	"mediastash-tg-bot/internal/storage"
	"mediastash-tg-bot/internal/tg"
)

func newTestRouter(store *fakeStore, bot *fakeBot) *Router {
	deps := newTestDeps(store, bot)
	resolver := &delivery.Resolver{
		Store: store,
		Bot:   bot,
		Retry: tg.RetryPolicy{MaxAttempts: 3, DefaultWait: time.Millisecond, Sleep: noSleep},
		Sleep: noSleep,
	}
	return NewRouter(deps, resolver,
		MovieFlow(), SeriesFlow(), AddSeasonFlow(), AddEpisodeFlow(),
		EditFlow(), DeleteFlow(), FindFlow())
}

func grantUpload(store *fakeStore, userID int64) {
	store.operators[userID] = &storage.Operator{UserID: userID, CanUpload: true}
}

func grantAdmin(store *fakeStore, userID int64) {
	store.operators[userID] = &storage.Operator{UserID: userID, CanUpload: true, IsAdmin: true}
}

func command(name, args string) Event {
	return Event{UserID: 7, ChatID: 7, Command: name, Args: args}
}

func TestRouterBlocksNonOperators(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)

	r.Dispatch(context.Background(), command("addmovie", ""))
	if got := bot.lastText(); !strings.Contains(got, "not allowed") {
		t.Errorf("got %q", got)
	}
	if r.slots[7].session != nil {
		t.Error("blocked command must not open a session")
	}
}

func TestRouterDeleteRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)
	grantUpload(store, 7)

	r.Dispatch(context.Background(), command("delete", ""))
	if got := bot.lastText(); !strings.Contains(got, "not allowed") {
		t.Errorf("plain operator started delete: %q", got)
	}

	grantAdmin(store, 7)
	r.Dispatch(context.Background(), command("delete", ""))
	if r.slots[7].session == nil || r.slots[7].session.Flow.Command != "delete" {
		t.Error("admin could not start delete")
	}
}

func TestRouterSecondFlowRejected(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)
	grantUpload(store, 7)

	ctx := context.Background()
	r.Dispatch(ctx, command("addmovie", ""))
	r.Dispatch(ctx, text("Inception"))
	before := *r.slots[7].session

	r.Dispatch(ctx, command("addseries", ""))
	if got := bot.lastText(); !strings.Contains(got, "already in progress") {
		t.Errorf("got %q", got)
	}
	after := r.slots[7].session
	if after.Flow.Command != "addmovie" || after.Step != before.Step || after.Draft.Title != "Inception" {
		t.Errorf("second command disturbed the active session: %+v", after)
	}
}

func TestRouterCancelCompensates(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)
	grantUpload(store, 7)

	ctx := context.Background()
	r.Dispatch(ctx, command("addseries", ""))
	r.Dispatch(ctx, text("Doomed"))
	r.Dispatch(ctx, text("2022"))
	r.Dispatch(ctx, text("skip"))
	r.Dispatch(ctx, text("skip"))
	r.Dispatch(ctx, text("anime"))

	seriesID := ident.ForTitle("anime", "Doomed", 2022)
	if _, ok := store.series[seriesID]; !ok {
		t.Fatal("series should be persisted mid-flow")
	}

	r.Dispatch(ctx, command("cancel", ""))
	if _, ok := store.series[seriesID]; ok {
		t.Error("cancel did not roll the series back")
	}
	if r.slots[7].session != nil {
		t.Error("cancel left a session behind")
	}
	if !strings.Contains(bot.lastText(), "cancelled") {
		t.Errorf("got %q", bot.lastText())
	}
}

func TestRouterCancelWithoutFlow(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)

	r.Dispatch(context.Background(), command("cancel", ""))
	if got := bot.lastText(); !strings.Contains(got, "Nothing to cancel") {
		t.Errorf("got %q", got)
	}
}

func TestRouterStartDeepLink(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)

	id := ident.ForTitle("movie", "Inception", 2010)
	store.movies[id] = &storage.Movie{
		ID: id, Title: "Inception",
		Artifact: storage.ArtifactRef{ChatID: -100, MessageID: 555},
	}

	r.Dispatch(context.Background(), command("start", id))
	if len(bot.relays) != 1 || bot.relays[0].from != -100 || bot.relays[0].messageID != 555 {
		t.Errorf("relays = %v", bot.relays)
	}
}

func TestRouterStartWithoutArgShowsHelp(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)

	r.Dispatch(context.Background(), command("start", ""))
	if got := bot.lastText(); !strings.Contains(got, "/addmovie") {
		t.Errorf("got %q", got)
	}
}

func TestRouterSeasonCallbackDelivers(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)

	store.series["myshow"] = &storage.Series{
		ID: "myshow", Title: "My Show", Category: "anime",
		Seasons: []storage.Season{{Number: 1}},
	}
	store.episodes["myshow-s01e01"] = &storage.Episode{
		ID: "myshow-s01e01", SeriesID: "myshow", Season: 1, Number: 1,
		Artifact: storage.ArtifactRef{ChatID: -300, MessageID: 9},
	}

	r.Dispatch(context.Background(), Event{
		UserID: 7, ChatID: 7,
		Callback: "season:myshow:1", CallbackID: "cb1",
	})
	if len(bot.relays) != 1 || bot.relays[0].messageID != 9 {
		t.Errorf("relays = %v", bot.relays)
	}
}

// Dispatch calls for different users must be able to run concurrently:
// one operator's slow upload may not hold up anyone else. The per-user
// slot locks provide the only serialization.
func TestRouterDispatchDoesNotBlockOtherUsers(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{
		relayGate:    make(chan struct{}),
		relayStarted: make(chan struct{}, 1),
	}
	r := newTestRouter(store, bot)
	grantUpload(store, 7)

	ctx := context.Background()
	r.Dispatch(ctx, command("addmovie", ""))
	r.Dispatch(ctx, text("Inception"))
	r.Dispatch(ctx, text("2010"))
	r.Dispatch(ctx, text("skip"))
	r.Dispatch(ctx, text("skip"))
	r.Dispatch(ctx, text("MOVIES"))

	done := make(chan struct{})
	go func() {
		r.Dispatch(ctx, file("inception.mkv"))
		close(done)
	}()
	<-bot.relayStarted

	// User 7 is parked inside the relay; user 8 must get through now.
	r.Dispatch(ctx, Event{UserID: 8, ChatID: 8, Command: "help"})
	if !strings.Contains(bot.lastText(), "/addmovie") {
		t.Fatalf("second user's command did not run while user 7 was relaying: %q", bot.lastText())
	}

	close(bot.relayGate)
	<-done
	wantID := ident.ForTitle("movie", "Inception", 2010)
	if _, ok := store.movies[wantID]; !ok {
		t.Errorf("blocked upload did not complete after the relay finished")
	}
}

func TestRouterListLimit(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)

	for _, id := range []string{"movie-a", "movie-b", "movie-c"} {
		store.movies[id] = &storage.Movie{ID: id, Title: id}
	}

	ctx := context.Background()
	r.Dispatch(ctx, command("list", "2"))
	if got := strings.Count(bot.lastText(), "https://t.me/"); got != 2 {
		t.Errorf("links listed = %d, want 2: %q", got, bot.lastText())
	}

	r.Dispatch(ctx, command("list", ""))
	if got := strings.Count(bot.lastText(), "https://t.me/"); got != 3 {
		t.Errorf("default listing = %d links, want 3: %q", got, bot.lastText())
	}

	r.Dispatch(ctx, command("list", "zero"))
	if !strings.Contains(bot.lastText(), "Usage: /list") {
		t.Errorf("bad argument not rejected: %q", bot.lastText())
	}
}

func TestHandleEventUnknownStep(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	d := newTestDeps(store, bot)
	s := newSession(MovieFlow())
	s.Step = "limbo"

	_, err := HandleEvent(context.Background(), d, s, text("anything"))
	if !errors.Is(err, ErrUnexpectedState) {
		t.Fatalf("err = %v, want ErrUnexpectedState", err)
	}
}

func TestRouterUnknownStepAbortsFlow(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)
	grantUpload(store, 7)

	ctx := context.Background()
	r.Dispatch(ctx, command("addmovie", ""))
	r.slots[7].session.Step = "limbo"

	r.Dispatch(ctx, text("Inception"))
	if r.slots[7].session != nil {
		t.Error("corrupted session not cleared")
	}
	last := bot.lastText()
	if !strings.Contains(last, "rolled back") || !strings.Contains(last, "/addmovie") {
		t.Errorf("abort message must name the restart command, got %q", last)
	}
}

func TestRouterPlainTextOutsideFlowIgnored(t *testing.T) {
	store := newFakeStore()
	bot := &fakeBot{}
	r := newTestRouter(store, bot)

	r.Dispatch(context.Background(), text("hello there"))
	if len(bot.texts) != 0 {
		t.Errorf("stray text answered: %v", bot.texts)
	}
}
