// Package flow drives the multi-step conversational operations: each
// flow type is a table of steps interpreted by one generic engine, and
// a router keeps the single active session per user.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mediastash-tg-bot/internal/pipeline"
	"mediastash-tg-bot/internal/storage"
	"mediastash-tg-bot/internal/tg"
)

// StepID names one state of a flow table.
type StepID string

// Done is the terminal pseudo-step; reaching it destroys the session.
const Done StepID = "done"

// ValidationError re-prompts the current step without advancing it.
// It never escapes the engine.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalid builds the re-prompt returned by step handlers on bad input.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ErrUnexpectedState means the session points at a step the flow table
// does not know; the whole flow is aborted and state cleared.
var ErrUnexpectedState = errors.New("unexpected conversation state")

// Step is one table entry: Handle validates the inbound event and, on
// success, mutates the session and returns the next step. Prompt is
// sent when the step is entered.
type Step struct {
	Prompt string
	Handle func(ctx context.Context, d *Deps, s *Session, ev Event) (StepID, error)
}

// Spec is a complete flow table. Compensate removes anything the flow
// persisted if it ends without reaching Done, on cancel and on error
// alike.
type Spec struct {
	Name       string
	Command    string
	Start      StepID
	Steps      map[StepID]Step
	Compensate func(ctx context.Context, d *Deps, s *Session)
}

// Store is the persistence surface the flows operate on.
type Store interface {
	CreateMovie(ctx context.Context, m *storage.Movie) error
	Movie(ctx context.Context, id string) (*storage.Movie, error)
	UpdateMovie(ctx context.Context, m *storage.Movie) error
	DeleteMovie(ctx context.Context, id string) error

	CreateSeries(ctx context.Context, s *storage.Series) error
	Series(ctx context.Context, id string) (*storage.Series, error)
	UpdateSeries(ctx context.Context, s *storage.Series) error
	DeleteSeries(ctx context.Context, id string) error
	AddSeason(ctx context.Context, seriesID string, season storage.Season) error
	DeleteSeason(ctx context.Context, seriesID string, number int) error

	Episode(ctx context.Context, id string) (*storage.Episode, error)
	SeasonEpisodes(ctx context.Context, seriesID string, season int) ([]storage.Episode, error)
	DeleteEpisode(ctx context.Context, id string) error

	Operator(ctx context.Context, userID int64) (*storage.Operator, error)
	SaveOperator(ctx context.Context, op *storage.Operator) error
	AddUploads(ctx context.Context, userID int64, n int) error
	ListRecent(ctx context.Context, limit int) ([]storage.ListItem, error)
}

// Transport is the outbound surface the flows use.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	PresentChoice(ctx context.Context, chatID int64, text string, rows [][]tg.Choice) error
	Relay(ctx context.Context, toChat, fromChat int64, messageID int) (int, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Username() string
}

// Deps is everything a step handler may touch.
type Deps struct {
	Store    Store
	Bot      Transport
	Channels map[string]int64 // channel key (MOVIES, WEBSERIES, ANIME) to chat id
	Uploader *pipeline.Uploader
	Retry    tg.RetryPolicy
	Log      zerolog.Logger
}

// Session is the single-slot conversation state of one user.
type Session struct {
	UserID int64
	ChatID int64
	Flow   *Spec
	Step   StepID
	Draft  Draft
	Batch  *pipeline.Batch
	// CreatedSeriesID tracks a series persisted mid-flow so an
	// unfinished run can be compensated.
	CreatedSeriesID string
}

// Draft is the data accumulated across steps.
type Draft struct {
	Title       string
	Year        int
	Genres      []string
	Description string
	Category    string
	ChannelKey  string
	ChannelID   int64
	SeasonTitle string

	// edit / delete / find targets
	TargetID   string
	TargetKind string
	Field      string
}

// HandleEvent runs one inbound event against the session's current
// step. Invalid input re-prompts and leaves the session untouched;
// reaching Done reports completion so the caller can destroy the
// session.
func HandleEvent(ctx context.Context, d *Deps, s *Session, ev Event) (bool, error) {
	step, ok := s.Flow.Steps[s.Step]
	if !ok {
		return false, fmt.Errorf("%w: flow %s step %q", ErrUnexpectedState, s.Flow.Name, s.Step)
	}
	next, err := step.Handle(ctx, d, s, ev)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			_ = d.Bot.SendText(ctx, s.ChatID, verr.Msg)
			return false, nil
		}
		return false, err
	}
	if next == Done {
		return true, nil
	}
	if next != s.Step {
		s.Step = next
		if prompt := s.Flow.Steps[next].Prompt; prompt != "" {
			_ = d.Bot.SendText(ctx, s.ChatID, prompt)
		}
	}
	return false, nil
}
