// Package tg wraps the Telegram Bot API with the outbound operations the
// catalog core issues: text sends, stored-artifact relays and choice
// keyboards. Every call goes through one shared token bucket so
// concurrent uploads from several operators cannot exceed the API rate
// together.
package tg

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimitedError is a transient throttle signal from the API. The
// suggested wait comes from the response; callers retry the same
// operation after waiting, it is not a failure.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Choice is one selectable option in a presented keyboard.
type Choice struct {
	Label string
	Data  string
}

type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewClient(api *tgbotapi.BotAPI, perSecond float64, burst int, log zerolog.Logger) *Client {
	if perSecond <= 0 {
		perSecond = 25
	}
	if burst <= 0 {
		burst = 5
	}
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		log:     log,
	}
}

// Username is the bot's own username, used to build shareable deep links.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.send(ctx, tgbotapi.NewMessage(chatID, text))
	return err
}

// PresentChoice sends text with an inline keyboard, one button per
// Choice; the Data field comes back as the callback payload.
func (c *Client) PresentChoice(ctx context.Context, chatID int64, text string, rows [][]Choice) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup(rows)
	_, err := c.send(ctx, msg)
	return err
}

// EditChoice swaps the text and keyboard of an already sent chooser.
func (c *Client) EditChoice(ctx context.Context, chatID int64, messageID int, text string, rows [][]Choice) error {
	kb := markup(rows)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	_, err := c.send(ctx, edit)
	return err
}

// Relay re-sends a stored artifact by reference. The returned id is the
// message created in the target chat.
func (c *Client) Relay(ctx context.Context, toChat, fromChat int64, messageID int) (int, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	res, err := c.api.CopyMessage(tgbotapi.NewCopyMessage(toChat, fromChat, messageID))
	if err != nil {
		return 0, mapAPIError(err)
	}
	return res.MessageID, nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
	return mapAPIError(err)
}

func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := c.wait(ctx); err != nil {
		return tgbotapi.Message{}, err
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		c.log.Debug().Err(err).Msg("telegram send failed")
		return tgbotapi.Message{}, mapAPIError(err)
	}
	return sent, nil
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func markup(rows [][]Choice) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, ch := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(ch.Label, ch.Data))
		}
		out = append(out, btns)
	}
	// Built directly: an empty rows list must serialize as [] to clear
	// a keyboard, which NewInlineKeyboardMarkup would turn into null.
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: out}
}

func mapAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &RateLimitedError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	return err
}
