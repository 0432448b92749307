package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/common/logger"
	accountmodels "github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/bot/models"
	"github.com/open-builders/adkamai/internal/features/bot/repository"
	"github.com/open-builders/adkamai/internal/features/ledger"
)

// Sender delivers outbound messages and returns the sent message id.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg models.Message) (int, error)
}

// MembershipChecker asks the chat platform whether a user belongs to the required group.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// GroupPoster posts into the required group.
type GroupPoster interface {
	PostToGroup(ctx context.Context, msg models.Message) error
}

// BroadcastScheduler reinstalls the periodic group broadcast.
type BroadcastScheduler interface {
	ApplyBroadcast(s *accountmodels.BroadcastSettings) error
}

type Config struct {
	BotUsername       string
	BaseURL           string
	GroupInviteURL    string
	AgreementURL      string
	AdminID           int64
	MembershipTimeout time.Duration
	PendingTTL        time.Duration
}

// Router turns chat events into ledger operations and replies.
type Router struct {
	cfg       Config
	ledger    ledger.Service
	pending   repository.PendingStore
	sender    Sender
	members   MembershipChecker
	group     GroupPoster
	scheduler BroadcastScheduler
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Router)

func WithGroupPoster(g GroupPoster) Option {
	return func(r *Router) { r.group = g }
}

func WithBroadcastScheduler(s BroadcastScheduler) Option {
	return func(r *Router) { r.scheduler = s }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func NewRouter(cfg Config, svc ledger.Service, pending repository.PendingStore, sender Sender, members MembershipChecker, opts ...Option) *Router {
	if cfg.MembershipTimeout <= 0 {
		cfg.MembershipTimeout = 3 * time.Second
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	r := &Router{
		cfg:     cfg,
		ledger:  svc,
		pending: pending,
		sender:  sender,
		members: members,
		now:     time.Now,
		log:     logger.Component("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one event. It never panics and never returns an error:
// failures are logged and answered with a generic retry message.
func (r *Router) Handle(ctx context.Context, ev models.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Int64("user_id", ev.UserID).
				Msg("Recovered from panic in chat handler")
			r.send(ctx, ev.ChatID, models.Message{Text: failureText})
		}
	}()

	if err := r.dispatch(ctx, ev); err != nil {
		evt := r.log.Error()
		if appErr, ok := apperrors.AsAppError(err); ok {
			evt = evt.Str("code", string(appErr.Code))
		}
		evt.Err(err).
			Int64("user_id", ev.UserID).
			Str("kind", string(ev.Kind)).
			Msg("Failed to handle chat event")
		r.send(ctx, ev.ChatID, models.Message{Text: failureText})
	}
}

func (r *Router) dispatch(ctx context.Context, ev models.Event) error {
	switch ev.Kind {
	case models.EventCommand:
		name, args := parseCommand(ev.Payload)
		if name == "start" {
			return r.handleStart(ctx, ev, args)
		}
		if r.isAdmin(ev.UserID) {
			if h, ok := r.adminCommands()[name]; ok {
				return h(ctx, ev, args)
			}
		}
		r.dropPending(ctx, ev.UserID)
		return r.handleAction(ctx, ev, actionNone)

	case models.EventButton:
		a, ok := callbackActions[ev.Payload]
		if !ok {
			return nil
		}
		return r.handleAction(ctx, ev, a)

	case models.EventText:
		text := strings.TrimSpace(ev.Payload)
		a, isMenu := labelActions[text]
		handled, err := r.consumePending(ctx, ev, text, isMenu)
		if handled || err != nil {
			return err
		}
		return r.handleAction(ctx, ev, a)
	}
	return nil
}

func (r *Router) handleStart(ctx context.Context, ev models.Event, args string) error {
	now := r.now()
	r.dropPending(ctx, ev.UserID)

	_, created, err := r.ledger.Touch(ctx, ev.UserID, ev.FirstName, now)
	if err != nil {
		return err
	}

	referrerID, _ := strconv.ParseInt(strings.TrimSpace(args), 10, 64)

	if created {
		msg := models.Message{Text: r.greetingText(), HTML: true, DisableLinkPreviews: true}
		if r.cfg.BotUsername != "" {
			msg.Inline = [][]models.InlineButton{{{Text: "▶️ Start Earning", URL: r.startLink(referrerID)}}}
		}
		r.send(ctx, ev.ChatID, msg)
		return nil
	}

	if referrerID > 0 {
		balance, ok, err := r.ledger.AttributeReferral(ctx, ev.UserID, referrerID, now)
		if err != nil {
			return err
		}
		if ok {
			r.send(ctx, referrerID, models.Message{Text: r.referralRewardText(balance), HTML: true})
		}
	}

	r.send(ctx, ev.ChatID, withMenu(models.Message{Text: r.welcomeText(), HTML: true}))
	return nil
}

func (r *Router) handleAction(ctx context.Context, ev models.Event, act action) error {
	a, _, err := r.ledger.Touch(ctx, ev.UserID, ev.FirstName, r.now())
	if err != nil {
		return err
	}
	if !r.ensureMember(ctx, a) {
		r.send(ctx, ev.ChatID, models.Message{Text: joinRequiredText, HTML: true, Inline: r.joinButton()})
		return nil
	}

	switch act {
	case actionWatchAd:
		if a.AdsWatchedToday >= r.ledger.Policy().DailyAdLimit {
			r.send(ctx, ev.ChatID, withMenu(models.Message{Text: r.dailyLimitText(), HTML: true}))
			return nil
		}
		r.send(ctx, ev.ChatID, models.Message{
			Text:   r.watchAdText(),
			HTML:   true,
			Inline: [][]models.InlineButton{{{Text: "▶️ Watch Ad", URL: r.adLink(a.ID)}}},
		})

	case actionBalance:
		text := balanceText(a)
		payouts, err := r.ledger.Payouts(ctx, a.ID)
		if err != nil {
			r.log.Warn().Err(err).Int64("user_id", a.ID).Msg("Failed to list payouts")
		} else if len(payouts) > 0 {
			text += lastPayoutText(&payouts[0])
		}
		r.send(ctx, ev.ChatID, withMenu(models.Message{Text: text, HTML: true}))

	case actionRefer:
		link := r.startLink(a.ID)
		r.send(ctx, ev.ChatID, models.Message{
			Text:                r.referText(a, link),
			HTML:                true,
			DisableLinkPreviews: true,
			Inline: [][]models.InlineButton{{{
				Text:        "📤 Invite your friends",
				SwitchQuery: fmt.Sprintf("Join %s! %s", appName, link),
			}}},
		})

	case actionWithdraw:
		return r.handleWithdraw(ctx, ev, a)

	case actionJoinGroup:
		r.send(ctx, ev.ChatID, models.Message{Text: joinGroupText, HTML: true, Inline: r.joinButton()})

	default:
		r.send(ctx, ev.ChatID, withMenu(models.Message{Text: chooseOptionText}))
	}
	return nil
}

func (r *Router) handleWithdraw(ctx context.Context, ev models.Event, a *accountmodels.Account) error {
	if a.PayoutAddress == "" {
		return r.promptPayoutAddress(ctx, ev)
	}

	payout, err := r.ledger.AttemptWithdraw(ctx, a.ID, r.now())
	if rej, ok := ledger.AsRejection(err); ok {
		if rej.Reason == ledger.ReasonMissingPayoutAddress {
			return r.promptPayoutAddress(ctx, ev)
		}
		r.send(ctx, ev.ChatID, withMenu(models.Message{Text: r.rejectionText(rej.Reason, a), HTML: true}))
		return nil
	}
	if err != nil {
		return err
	}

	r.send(ctx, ev.ChatID, withMenu(models.Message{Text: withdrawPlacedText(payout), HTML: true}))
	return nil
}

func (r *Router) promptPayoutAddress(ctx context.Context, ev models.Event) error {
	msgID, err := r.sender.Send(ctx, ev.ChatID, models.Message{Text: payoutPromptText, HTML: true, ForceReply: true})
	if err != nil {
		r.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("Failed to send payout address prompt")
		return nil
	}

	p := &models.PendingInput{
		CorrelationID:   uuid.NewString(),
		Kind:            models.PendingPayoutAddress,
		PromptMessageID: msgID,
		CreatedAt:       r.now(),
	}
	return r.pending.Put(ctx, ev.UserID, p, r.cfg.PendingTTL)
}

// consumePending answers an outstanding prompt with text. It reports whether
// the text was used as the answer.
func (r *Router) consumePending(ctx context.Context, ev models.Event, text string, isMenu bool) (bool, error) {
	p, err := r.pending.Take(ctx, ev.UserID)
	if err != nil {
		r.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("Failed to read pending input")
		return false, nil
	}
	if p == nil {
		return false, nil
	}
	if isMenu {
		r.log.Debug().Int64("user_id", ev.UserID).Str("correlation_id", p.CorrelationID).Msg("Pending input cancelled by menu")
		return false, nil
	}
	if ev.ReplyToMessageID != 0 && ev.ReplyToMessageID != p.PromptMessageID {
		if remaining := r.cfg.PendingTTL - r.now().Sub(p.CreatedAt); remaining > 0 {
			if err := r.pending.Put(ctx, ev.UserID, p, remaining); err != nil {
				r.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("Failed to restore pending input")
			}
		}
		return false, nil
	}

	switch p.Kind {
	case models.PendingPayoutAddress:
		return true, r.savePayoutAddress(ctx, ev, text)
	}
	return false, nil
}

func (r *Router) savePayoutAddress(ctx context.Context, ev models.Event, text string) error {
	a, err := r.ledger.SetPayoutAddress(ctx, ev.UserID, text)
	if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsValidation() {
		r.send(ctx, ev.ChatID, withMenu(models.Message{Text: invalidAddressText}))
		return nil
	}
	if err != nil {
		return err
	}

	r.log.Info().Int64("user_id", ev.UserID).Msg("Payout address saved")
	r.send(ctx, ev.ChatID, withMenu(models.Message{Text: payoutSavedText(a.PayoutAddress), HTML: true}))
	return nil
}

func (r *Router) dropPending(ctx context.Context, userID int64) {
	if _, err := r.pending.Take(ctx, userID); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to clear pending input")
	}
}

// ensureMember applies the group gate. Checker failures count as "not a member".
func (r *Router) ensureMember(ctx context.Context, a *accountmodels.Account) bool {
	if a.HasConfirmedMembership {
		return true
	}

	checkCtx, cancel := context.WithTimeout(ctx, r.cfg.MembershipTimeout)
	defer cancel()

	ok, err := r.members.IsMember(checkCtx, a.ID)
	if err != nil {
		r.log.Debug().Err(err).Int64("user_id", a.ID).Msg("Membership check failed")
		return false
	}
	if !ok {
		return false
	}

	if err := r.ledger.ConfirmMembership(ctx, a.ID); err != nil && !errors.Is(err, ledger.ErrUnknownAccount) {
		r.log.Warn().Err(err).Int64("user_id", a.ID).Msg("Failed to persist membership")
	}
	return true
}

// send is best-effort: delivery failures are logged and dropped.
func (r *Router) send(ctx context.Context, chatID int64, msg models.Message) {
	if _, err := r.sender.Send(ctx, chatID, msg); err != nil {
		r.log.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to deliver message")
	}
}

func (r *Router) joinButton() [][]models.InlineButton {
	if r.cfg.GroupInviteURL == "" {
		return nil
	}
	return [][]models.InlineButton{{{Text: "Join Group 🚀", URL: r.cfg.GroupInviteURL}}}
}

func (r *Router) adLink(userID int64) string {
	return fmt.Sprintf("%s/ad?user=%d", r.cfg.BaseURL, userID)
}

func (r *Router) startLink(payload int64) string {
	if payload <= 0 {
		return fmt.Sprintf("https://t.me/%s", r.cfg.BotUsername)
	}
	return fmt.Sprintf("https://t.me/%s?start=%d", r.cfg.BotUsername, payload)
}

func (r *Router) isAdmin(userID int64) bool {
	return r.cfg.AdminID != 0 && userID == r.cfg.AdminID
}

// parseCommand splits "/name@bot args" into a lower-case name and the raw argument text.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	name, args := text[1:], ""
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name, args = name[:i], name[i+1:]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}
