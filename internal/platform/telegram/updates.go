package telegram

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/open-builders/adkamai/internal/common/logger"
	"github.com/open-builders/adkamai/internal/features/bot/models"
)

// Handler consumes transport-independent chat events.
type Handler interface {
	Handle(ctx context.Context, ev models.Event)
}

// Dispatcher feeds Telegram updates to a Handler with bounded concurrency.
// Updates from long polling and from the webhook go through the same path.
type Dispatcher struct {
	client  *Client
	handler Handler
	sem     chan struct{}
	wg      sync.WaitGroup
	log     zerolog.Logger

	webhookSecret string
}

// SecretTokenHeader carries the secret_token given to setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

func NewDispatcher(client *Client, handler Handler, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		client:  client,
		handler: handler,
		sem:     make(chan struct{}, workers),
		log:     logger.Component("updates"),
	}
}

// Poll receives updates with getUpdates until ctx is cancelled, then waits for
// in-flight handlers.
func (d *Dispatcher) Poll(ctx context.Context) error {
	if err := d.client.DeleteWebhook(); err != nil {
		d.log.Warn().Err(err).Msg("Failed to delete webhook before polling")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := d.client.api.GetUpdatesChan(u)
	d.log.Info().Msg("Long polling started")

	for {
		select {
		case <-ctx.Done():
			d.client.api.StopReceivingUpdates()
			d.log.Info().Msg("Long polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, update)
		}
	}
}

// SetWebhookSecret sets the token every webhook delivery must carry.
func (d *Dispatcher) SetWebhookSecret(secret string) {
	d.webhookSecret = secret
}

// ServeHTTP accepts one webhook delivery. Without a configured secret every
// delivery is refused.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		d.log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Rejected webhook delivery without a valid secret token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	update, err := d.client.api.HandleUpdate(r)
	if err != nil {
		d.log.Warn().Err(err).Msg("Rejected webhook payload")
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	d.Dispatch(r.Context(), *update)
	w.WriteHeader(http.StatusOK)
}

func (d *Dispatcher) authorized(r *http.Request) bool {
	if d.webhookSecret == "" {
		return false
	}
	got := r.Header.Get(SecretTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(d.webhookSecret)) == 1
}

// Dispatch hands one update to the handler on its own goroutine. It blocks
// while all workers are busy.
func (d *Dispatcher) Dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		if _, err := d.client.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			d.log.Debug().Err(err).Msg("Failed to answer callback query")
		}
	}

	ev, ok := ToEvent(update)
	if !ok {
		return
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	// Handlers outlive the request or polling context so shutdown never
	// interrupts a half-applied interaction.
	hctx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		d.handler.Handle(hctx, ev)
	}()
}

// Wait blocks until in-flight handlers finish or timeout elapses.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.log.Warn().Dur("timeout", timeout).Msg("Handlers still running at shutdown")
		return false
	}
}

// ToEvent converts an update into an Event. Updates the bot does not act on
// (edits, channel posts, non-text messages) report false.
func ToEvent(update tgbotapi.Update) (models.Event, bool) {
	switch {
	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil || strings.TrimSpace(m.Text) == "" {
			return models.Event{}, false
		}
		ev := models.Event{
			Kind:      models.EventText,
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			FirstName: m.From.FirstName,
			Payload:   m.Text,
		}
		if m.IsCommand() {
			ev.Kind = models.EventCommand
		}
		if m.ReplyToMessage != nil {
			ev.ReplyToMessageID = m.ReplyToMessage.MessageID
		}
		return ev, true

	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Data == "" {
			return models.Event{}, false
		}
		chatID := q.From.ID
		if q.Message != nil && q.Message.Chat != nil {
			chatID = q.Message.Chat.ID
		}
		return models.Event{
			Kind:      models.EventButton,
			UserID:    q.From.ID,
			ChatID:    chatID,
			FirstName: q.From.FirstName,
			Payload:   q.Data,
		}, true
	}
	return models.Event{}, false
}
