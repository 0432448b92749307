package router

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/open-builders/adkamai/internal/common/validation"
	accountmodels "github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/bot/models"
)

// broadcastPause keeps direct broadcasts under Telegram's global send rate.
const broadcastPause = 40 * time.Millisecond

type commandHandler func(ctx context.Context, ev models.Event, args string) error

func (r *Router) adminCommands() map[string]commandHandler {
	return map[string]commandHandler{
		"broadcast":    r.cmdBroadcast,
		"setmessage":   r.cmdSetMessage,
		"setinterval":  r.cmdSetInterval,
		"broadcaston":  r.cmdBroadcastToggle(true),
		"broadcastoff": r.cmdBroadcastToggle(false),
		"broadcastnow": r.cmdBroadcastNow,
		"stats":        r.cmdStats,
	}
}

func (r *Router) reply(ctx context.Context, ev models.Event, text string) {
	r.send(ctx, ev.ChatID, models.Message{Text: text, HTML: true})
}

// cmdBroadcast sends a direct message to every account.
func (r *Router) cmdBroadcast(ctx context.Context, ev models.Event, args string) error {
	if args == "" {
		r.reply(ctx, ev, fmt.Sprintf(adminUsageText, "/broadcast &lt;text&gt;"))
		return nil
	}

	msg := models.Message{Text: adminBroadcastText(args), HTML: true}
	var sent, failed int
	err := r.ledger.ForEachAccount(ctx, func(id int64) error {
		if _, err := r.sender.Send(ctx, id, msg); err != nil {
			failed++
		} else {
			sent++
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(broadcastPause):
			return nil
		}
	})
	if err != nil {
		return err
	}

	r.log.Info().Int("sent", sent).Int("failed", failed).Msg("Admin broadcast finished")
	r.reply(ctx, ev, fmt.Sprintf("✅ Broadcast sent to %d users.", sent))
	return nil
}

func (r *Router) cmdSetMessage(ctx context.Context, ev models.Event, args string) error {
	if args == "" {
		r.reply(ctx, ev, fmt.Sprintf(adminUsageText, "/setmessage &lt;text&gt;"))
		return nil
	}
	if err := validation.BroadcastMessage(args); err != nil {
		r.reply(ctx, ev, "⚠️ "+html.EscapeString(err.Error()))
		return nil
	}
	s, err := r.updateBroadcast(ctx, func(s *accountmodels.BroadcastSettings) {
		s.Message = args
	})
	if err != nil {
		return err
	}
	r.reply(ctx, ev, fmt.Sprintf("✅ Broadcast message saved. Group broadcast is %s.", onOff(s.Enabled)))
	return nil
}

func (r *Router) cmdSetInterval(ctx context.Context, ev models.Event, args string) error {
	minutes, err := strconv.Atoi(args)
	if err != nil {
		r.reply(ctx, ev, fmt.Sprintf(adminUsageText, "/setinterval &lt;minutes&gt;"))
		return nil
	}
	if err := validation.BroadcastInterval(minutes); err != nil {
		r.reply(ctx, ev, "⚠️ "+html.EscapeString(err.Error()))
		return nil
	}
	if _, err := r.updateBroadcast(ctx, func(s *accountmodels.BroadcastSettings) {
		s.IntervalMinutes = minutes
	}); err != nil {
		return err
	}
	r.reply(ctx, ev, fmt.Sprintf("✅ Broadcast interval set to %d minutes.", minutes))
	return nil
}

func (r *Router) cmdBroadcastToggle(enabled bool) commandHandler {
	return func(ctx context.Context, ev models.Event, _ string) error {
		s, err := r.updateBroadcast(ctx, func(s *accountmodels.BroadcastSettings) {
			s.Enabled = enabled
		})
		if err != nil {
			return err
		}
		switch {
		case !enabled:
			r.reply(ctx, ev, broadcastOffText)
		case s.Message == "":
			r.reply(ctx, ev, emptyBroadcastMsg)
		default:
			r.reply(ctx, ev, fmt.Sprintf("▶️ Group broadcast enabled, every %d minutes.", s.IntervalMinutes))
		}
		return nil
	}
}

func (r *Router) cmdBroadcastNow(ctx context.Context, ev models.Event, args string) error {
	if r.group == nil {
		r.reply(ctx, ev, groupMissingText)
		return nil
	}

	text := args
	if text == "" {
		s, err := r.ledger.BroadcastSettings(ctx)
		if err != nil {
			return err
		}
		text = s.Message
	}
	if text == "" {
		r.reply(ctx, ev, emptyBroadcastMsg)
		return nil
	}

	if err := r.group.PostToGroup(ctx, models.GroupBroadcast(text, r.startLink(0))); err != nil {
		r.log.Warn().Err(err).Msg("Group broadcast failed")
		r.reply(ctx, ev, "⚠️ Could not post to the group.")
		return nil
	}
	r.reply(ctx, ev, "✅ Posted to the group.")
	return nil
}

func (r *Router) cmdStats(ctx context.Context, ev models.Event, _ string) error {
	now := r.now()
	stats, err := r.ledger.Stats(ctx, now)
	if err != nil {
		return err
	}
	settings, err := r.ledger.BroadcastSettings(ctx)
	if err != nil {
		return err
	}
	r.reply(ctx, ev, statsText(stats, settings))
	return nil
}

func (r *Router) updateBroadcast(ctx context.Context, fn func(s *accountmodels.BroadcastSettings)) (*accountmodels.BroadcastSettings, error) {
	s, err := r.ledger.UpdateBroadcastSettings(ctx, fn, r.now())
	if err != nil {
		return nil, err
	}
	if r.scheduler != nil {
		if err := r.scheduler.ApplyBroadcast(s); err != nil {
			r.log.Error().Err(err).Msg("Failed to reschedule group broadcast")
		}
	}
	return s, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
