package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/goalbot/core/logger"
	"log/slog"
)

const defaultLongPollTimeout = 10 * time.Second

// Telegram implements polling and sending over the Bot API.
//
// It deliberately bypasses telebot's own poller: the session engine owns the
// getUpdates offset, so updates are fetched with an explicit offset through
// the raw API and handed back as a batch.
type Telegram struct {
	bot     *tele.Bot
	timeout time.Duration
}

// Options configure the Telegram transport.
type Options struct {
	Token string
	// LongPollTimeout bounds a single getUpdates call; 0 -> 10s.
	LongPollTimeout time.Duration
	// Offline skips the getMe probe on construction; used in tests.
	Offline bool
}

// New validates the token against the Bot API and returns the transport.
func New(opts Options) (*Telegram, error) {
	timeout := opts.LongPollTimeout
	if timeout <= 0 {
		timeout = defaultLongPollTimeout
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		Client:  BuildHTTPClient(),
		Offline: opts.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	logger.TG.Info("transport ready",
		slog.String("event", "mode"),
		slog.String("mode", "longpoll"),
		slog.Int64("timeout_ms", timeout.Milliseconds()),
	)

	return &Telegram{bot: bot, timeout: timeout}, nil
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// Poll long-polls getUpdates starting at offset. An empty batch after the
// timeout is a normal outcome, not an error. The call itself is bounded by
// the configured long-poll timeout; ctx cancellation is honored between calls.
func (t *Telegram) Poll(ctx context.Context, offset int64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := t.bot.Raw("getUpdates", getUpdatesParams{
		Offset:         offset,
		Timeout:        int(t.timeout.Seconds()),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates: %w", err)
	}

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("telegram: decode getUpdates response: %w", err)
	}

	events := make([]Event, 0, len(resp.Result))
	for _, upd := range resp.Result {
		events = append(events, fromUpdate(upd))
	}
	return events, nil
}

// Send delivers one outbound message.
func (t *Telegram) Send(ctx context.Context, out Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := &tele.SendOptions{}
	if out.HTML {
		opts.ParseMode = tele.ModeHTML
	}
	if len(out.Keyboard) > 0 {
		opts.ReplyMarkup = replyButtons(out.Keyboard)
	}

	if _, err := t.bot.Send(tele.ChatID(out.ChatID), out.Text, opts); err != nil {
		return fmt.Errorf("telegram: send to chat %d: %w", out.ChatID, err)
	}
	return nil
}

func fromUpdate(upd tele.Update) Event {
	ev := Event{ID: int64(upd.ID)}
	if upd.Message == nil || upd.Message.Chat == nil {
		return ev
	}
	msg := &Message{
		ChatID: upd.Message.Chat.ID,
		Text:   upd.Message.Text,
		Time:   time.Unix(upd.Message.Unixtime, 0),
	}
	if upd.Message.Sender != nil {
		msg.Username = upd.Message.Sender.Username
	}
	ev.Message = msg
	return ev
}
