package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

// Notifier sends one rendered message to one recipient. Transport errors
// surface so the dispatcher can account retries.
type Notifier interface {
	Send(ctx context.Context, chatID int64, msg Message) error
}

// Telegram is the telebot-backed Notifier. It also owns the long-poll loop
// for subscription commands.
type Telegram struct {
	bot    *tele.Bot
	logger *slog.Logger
}

// NewTelegram creates the bot. timeout bounds each outbound API call.
func NewTelegram(token string, timeout time.Duration, logger *slog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, logger: logger}, nil
}

// Send delivers one message, as a photo with caption when the deal has an
// image, as plain HTML text otherwise.
func (t *Telegram) Send(ctx context.Context, chatID int64, msg Message) error {
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: msg.PhotoURL == "",
	}
	if msg.LinkURL != "" {
		opts.ReplyMarkup = &tele.ReplyMarkup{
			InlineKeyboard: [][]tele.InlineButton{
				{{Text: msg.LinkText, URL: msg.LinkURL}},
			},
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	recipient := tele.ChatID(chatID)
	var err error
	if msg.PhotoURL != "" {
		photo := &tele.Photo{File: tele.FromURL(msg.PhotoURL), Caption: msg.Text}
		_, err = t.bot.Send(recipient, photo, opts)
	} else {
		_, err = t.bot.Send(recipient, msg.Text, opts)
	}
	if err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// SendText delivers a plain text reply, used by the command handlers.
func (t *Telegram) SendText(chatID int64, text string) error {
	_, err := t.bot.Send(tele.ChatID(chatID), text)
	return err
}

// RegisterCommands wires the subscription commands onto the bot.
func (t *Telegram) RegisterCommands(subs *store.Subscribers) {
	subscribe := func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		added, err := subs.Add(ctx, c.Chat().ID)
		if err != nil {
			t.logger.Error("subscribe failed", "chat_id", c.Chat().ID, "error", err)
			return c.Send("Error interno, intenta de nuevo.")
		}
		if added {
			return c.Send("¡Suscrito! 🎉 Recibirás ofertas calientes.")
		}
		return c.Send("Ya estás suscrito.")
	}

	unsubscribe := func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := subs.Remove(ctx, c.Chat().ID); err != nil {
			t.logger.Error("unsubscribe failed", "chat_id", c.Chat().ID, "error", err)
			return c.Send("Error interno, intenta de nuevo.")
		}
		return c.Send("Suscripción cancelada.")
	}

	t.bot.Handle("/start", subscribe)
	t.bot.Handle("/subscribe", subscribe)
	t.bot.Handle("/stop", unsubscribe)
	t.bot.Handle("/unsubscribe", unsubscribe)
	t.bot.Handle(tele.OnText, func(c tele.Context) error {
		return c.Send("Usa /start para suscribirte o /stop para cancelar.")
	})
}

// Start runs the long-poll loop until ctx is cancelled. Intended to be
// called with `go`.
func (t *Telegram) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		t.bot.Stop()
	}()
	t.logger.Info("Telegram bot polling started")
	t.bot.Start()
	t.logger.Info("Telegram bot polling stopped")
}
