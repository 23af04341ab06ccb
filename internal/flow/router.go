package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"mediastash-tg-bot/internal/delivery"
	"mediastash-tg-bot/internal/storage"
)

const helpText = `Catalog bot commands:
/addmovie - upload a movie
/addseries - create a series and upload its first season
/addseason - add a season to an existing series
/addepisode - add single episodes to an existing season
/edit - change a title, year, genres or description
/delete - remove an entry (admins only)
/find - look an entry up by id
/list [count] - recently added entries
/stats - your upload counter
/cancel - abort the current operation`

// Router owns the per-user sessions and decides which surface an
// inbound event belongs to: a deep-link delivery, a command, or the
// user's active flow.
type Router struct {
	deps     *Deps
	resolver *delivery.Resolver
	flows    []*Spec

	mu    sync.Mutex
	slots map[int64]*userSlot
}

// userSlot serializes events of one user. Telegram delivers a user's
// updates in order, but polling workers may overlap, so each slot has
// its own lock.
type userSlot struct {
	mu      sync.Mutex
	session *Session
}

func NewRouter(deps *Deps, resolver *delivery.Resolver, flows ...*Spec) *Router {
	return &Router{
		deps:     deps,
		resolver: resolver,
		flows:    flows,
		slots:    map[int64]*userSlot{},
	}
}

func (r *Router) slot(userID int64) *userSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[userID]
	if !ok {
		s = &userSlot{}
		r.slots[userID] = s
	}
	return s
}

// Dispatch routes one event. It blocks while an earlier event of the
// same user is still being handled.
func (r *Router) Dispatch(ctx context.Context, ev Event) {
	slot := r.slot(ev.UserID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	var err error
	switch {
	case ev.Callback != "":
		err = r.handleCallback(ctx, slot, ev)
	case ev.Command != "":
		err = r.handleCommand(ctx, slot, ev)
	default:
		err = r.handleMessage(ctx, slot, ev)
	}
	if err != nil {
		r.deps.Log.Error().Err(err).Int64("user", ev.UserID).Msg("dispatch failed")
	}
}

func (r *Router) handleCallback(ctx context.Context, slot *userSlot, ev Event) error {
	// Ack immediately so the client stops its spinner even if the
	// work below takes a while.
	_ = r.deps.Bot.AnswerCallback(ctx, ev.CallbackID, "")

	if strings.HasPrefix(ev.Callback, "season:") {
		return r.resolver.HandleSeasonChoice(ctx, ev.ChatID, ev.MessageID, ev.Callback)
	}
	if slot.session == nil {
		return nil
	}
	return r.advance(ctx, slot, ev)
}

func (r *Router) handleCommand(ctx context.Context, slot *userSlot, ev Event) error {
	switch ev.Command {
	case "start":
		if arg := strings.TrimSpace(ev.Args); arg != "" {
			return r.resolver.Resolve(ctx, ev.ChatID, arg)
		}
		return r.deps.Bot.SendText(ctx, ev.ChatID, helpText)
	case "help":
		return r.deps.Bot.SendText(ctx, ev.ChatID, helpText)
	case "cancel":
		return r.cancel(ctx, slot, ev)
	case "list":
		return r.list(ctx, ev)
	case "stats":
		return r.stats(ctx, ev)
	}

	if spec := r.flowFor(ev.Command); spec != nil {
		return r.begin(ctx, slot, spec, ev)
	}

	// Inside a flow, unknown commands are fed to the current step so
	// that e.g. "/done" can end an episode collection.
	if slot.session != nil {
		return r.advance(ctx, slot, ev)
	}
	return r.deps.Bot.SendText(ctx, ev.ChatID, "Unknown command. Try /help.")
}

func (r *Router) handleMessage(ctx context.Context, slot *userSlot, ev Event) error {
	if slot.session == nil {
		// Plain chatter outside any flow is ignored.
		return nil
	}
	return r.advance(ctx, slot, ev)
}

func (r *Router) flowFor(command string) *Spec {
	for _, f := range r.flows {
		if f.Command == command {
			return f
		}
	}
	return nil
}

func (r *Router) begin(ctx context.Context, slot *userSlot, spec *Spec, ev Event) error {
	if slot.session != nil {
		return r.deps.Bot.SendText(ctx, ev.ChatID,
			fmt.Sprintf("A %s operation is already in progress. Finish it or /cancel first.", slot.session.Flow.Name))
	}
	ok, err := r.allowed(ctx, ev.UserID, spec)
	if err != nil {
		return err
	}
	if !ok {
		return r.deps.Bot.SendText(ctx, ev.ChatID, "You are not allowed to do that.")
	}

	slot.session = &Session{
		UserID: ev.UserID,
		ChatID: ev.ChatID,
		Flow:   spec,
		Step:   spec.Start,
	}
	if prompt := spec.Steps[spec.Start].Prompt; prompt != "" {
		return r.deps.Bot.SendText(ctx, ev.ChatID, prompt)
	}
	return nil
}

// allowed gates flow entry: every flow needs upload rights, delete
// additionally needs the admin flag.
func (r *Router) allowed(ctx context.Context, userID int64, spec *Spec) (bool, error) {
	op, err := r.deps.Store.Operator(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if spec.Command == "delete" {
		return op.IsAdmin, nil
	}
	return op.CanUpload, nil
}

func (r *Router) advance(ctx context.Context, slot *userSlot, ev Event) error {
	s := slot.session
	done, err := HandleEvent(ctx, r.deps, s, ev)
	if err != nil {
		r.compensate(ctx, s)
		slot.session = nil
		_ = r.deps.Bot.SendText(ctx, s.ChatID,
			fmt.Sprintf("The %s operation failed and was rolled back. Start over with /%s.", s.Flow.Name, s.Flow.Command))
		return err
	}
	if done {
		slot.session = nil
	}
	return nil
}

func (r *Router) cancel(ctx context.Context, slot *userSlot, ev Event) error {
	s := slot.session
	if s == nil {
		return r.deps.Bot.SendText(ctx, ev.ChatID, "Nothing to cancel.")
	}
	r.compensate(ctx, s)
	slot.session = nil
	return r.deps.Bot.SendText(ctx, ev.ChatID, fmt.Sprintf("The %s operation was cancelled.", s.Flow.Name))
}

func (r *Router) compensate(ctx context.Context, s *Session) {
	if s.Flow.Compensate != nil {
		s.Flow.Compensate(ctx, r.deps, s)
	}
}

func (r *Router) list(ctx context.Context, ev Event) error {
	limit := 15
	if arg := strings.TrimSpace(ev.Args); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return r.deps.Bot.SendText(ctx, ev.ChatID, "Usage: /list [count]")
		}
		limit = n
	}
	items, err := r.deps.Store.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return r.deps.Bot.SendText(ctx, ev.ChatID, "The catalog is empty.")
	}
	var b strings.Builder
	b.WriteString("Recently added:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "%s (%d) [%s]\n%s\n", it.Title, it.Year, it.Kind, deepLink(r.deps.Bot.Username(), it.ID))
	}
	return r.deps.Bot.SendText(ctx, ev.ChatID, b.String())
}

func (r *Router) stats(ctx context.Context, ev Event) error {
	op, err := r.deps.Store.Operator(ctx, ev.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.deps.Bot.SendText(ctx, ev.ChatID, "You are not registered as an operator.")
	}
	if err != nil {
		return err
	}
	return r.deps.Bot.SendText(ctx, ev.ChatID, fmt.Sprintf("Files uploaded so far: %d", op.Uploads))
}
