package flow

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mediastash-tg-bot/internal/pipeline"
)

// Event is one inbound update reduced to what the core consumes:
// command text, free-form text, a file attachment or a button click.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int

	Text    string
	Command string
	Args    string

	File *pipeline.FileRef

	Callback   string
	CallbackID string
}

// FromUpdate flattens a Telegram update into an Event. The second
// result is false for update kinds the core ignores.
func FromUpdate(u tgbotapi.Update) (Event, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		ev := Event{
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			Text:      m.Text,
		}
		if m.IsCommand() {
			ev.Command = m.Command()
			ev.Args = m.CommandArguments()
		}
		switch {
		case m.Document != nil:
			ev.File = &pipeline.FileRef{
				ChatID:    m.Chat.ID,
				MessageID: m.MessageID,
				FileName:  m.Document.FileName,
			}
		case m.Video != nil:
			ev.File = &pipeline.FileRef{
				ChatID:    m.Chat.ID,
				MessageID: m.MessageID,
				FileName:  m.Video.FileName,
			}
		}
		return ev, true
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		cq := u.CallbackQuery
		return Event{
			UserID:     cq.From.ID,
			ChatID:     cq.Message.Chat.ID,
			MessageID:  cq.Message.MessageID,
			Callback:   cq.Data,
			CallbackID: cq.ID,
		}, true
	default:
		return Event{}, false
	}
}
