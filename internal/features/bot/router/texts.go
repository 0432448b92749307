package router

import (
	"fmt"
	"html"

	"github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/ledger"
)

const appName = "DailyKamai"

func (r *Router) greetingText() string {
	agreement := "Read it in the group description."
	if r.cfg.AgreementURL != "" {
		agreement = fmt.Sprintf(`<a href="%s">Read here</a>`, html.EscapeString(r.cfg.AgreementURL))
	}
	return fmt.Sprintf("👋 <b>Welcome to %s</b>\n\n📜 User Agreement: %s\n\n💬 Send <b>/start</b> again to begin earning.", appName, agreement)
}

func (r *Router) welcomeText() string {
	p := r.ledger.Policy()
	return fmt.Sprintf(
		"<b>👋 Welcome back to %s</b>\n\nWatch short video ads and earn ₹%d for each one. Invite friends and earn ₹%d per referral.\n\nChoose an option below.",
		appName, p.AdReward, p.ReferralReward,
	)
}

func (r *Router) watchAdText() string {
	return fmt.Sprintf("🎬 You earn ₹%d for every ad you watch.\n⚠️ Keep the page open until the video finishes.\n\nUse the button below to start.", r.ledger.Policy().AdReward)
}

func (r *Router) dailyLimitText() string {
	return fmt.Sprintf("🚫 You have watched %d ads today. Come back tomorrow.", r.ledger.Policy().DailyAdLimit)
}

func balanceText(a *models.Account) string {
	return fmt.Sprintf("<b>💰 Your balance:</b> ₹%d\n<b>👥 Referrals:</b> %d", a.Balance, a.ReferralCount)
}

func lastPayoutText(p *models.Payout) string {
	return fmt.Sprintf("\n<b>🏦 Last withdrawal:</b> ₹%d on %s", p.Amount, p.RequestedAt.Format("02 Jan 2006"))
}

func (r *Router) referText(a *models.Account, link string) string {
	return fmt.Sprintf("👥 Refer & earn ₹%d!\nYou have invited %d people so far.\n\nYour referral link:\n%s",
		r.ledger.Policy().ReferralReward, a.ReferralCount, link)
}

const (
	joinRequiredText   = "📢 You need to join our Telegram group to use the bot.\n\nTap below to join, then come back."
	joinGroupText      = "📢 Join our official Telegram group for updates and withdrawal announcements:"
	chooseOptionText   = "Choose an option from the menu."
	payoutPromptText   = "🏦 Send your UPI ID (name@bank)."
	invalidAddressText = "⚠️ Please send a valid UPI ID on one line. Tap 🏦 Withdraw Funds to try again."
	failureText        = "⚠️ Something went wrong, please try again."
	adminUsageText     = "Usage: %s"
	broadcastOffText   = "⏸ Group broadcast disabled."
	groupMissingText   = "⚠️ Group broadcasting is not configured."
	emptyBroadcastMsg  = "⚠️ No broadcast message set. Use /setmessage first."
)

func payoutSavedText(address string) string {
	return fmt.Sprintf("✅ UPI saved: <b>%s</b>\n\nTap %s to request your payout.", html.EscapeString(address), LabelWithdraw)
}

func (r *Router) referralRewardText(balance int64) string {
	return fmt.Sprintf("🎉 You earned ₹%d for referring a friend! Balance: ₹%d", r.ledger.Policy().ReferralReward, balance)
}

// RewardNotice is sent after an ad view is credited from the ad page.
func RewardNotice(reward, balance int64) string {
	return fmt.Sprintf("🎉 You earned ₹%d. Balance: ₹%d", reward, balance)
}

func (r *Router) rejectionText(reason ledger.Reason, a *models.Account) string {
	p := r.ledger.Policy()
	switch reason {
	case ledger.ReasonBelowMinimumBalance:
		return fmt.Sprintf("⚠️ Minimum ₹%d needed. Your balance: ₹%d", p.MinWithdrawBalance, a.Balance)
	case ledger.ReasonInsufficientReferrals:
		if p.FullWithdrawReferrals > p.MinReferrals && a.ReferralCount >= p.MinReferrals {
			return fmt.Sprintf("👥 Full withdrawal allowed after %d referrals. Yours: %d", p.FullWithdrawReferrals, a.ReferralCount)
		}
		return fmt.Sprintf("👥 Need at least %d referrals. Yours: %d", p.MinReferrals, a.ReferralCount)
	case ledger.ReasonTooNew:
		left := p.MinDaysBeforeWithdraw - ledger.DaysSince(a.FirstSeenAt, r.now())
		return fmt.Sprintf("⏳ Withdrawal allowed after %d days. (%d left)", p.MinDaysBeforeWithdraw, left)
	case ledger.ReasonDailyLimitReached:
		return r.dailyLimitText()
	case ledger.ReasonTooSoon:
		return "⏳ Please wait a few seconds before the next ad."
	default:
		return payoutPromptText
	}
}

func withdrawPlacedText(p *models.Payout) string {
	return fmt.Sprintf("✅ Withdrawal request placed!\nAmount: ₹%d\nUPI: %s\nProcessing within 3 days.", p.Amount, html.EscapeString(p.PayoutAddress))
}

func adminBroadcastText(text string) string {
	return "📢 <b>Admin Broadcast</b>\n\n" + html.EscapeString(text)
}

func statsText(s *models.Stats, b *models.BroadcastSettings) string {
	status := "off"
	if b.Runnable() {
		status = fmt.Sprintf("every %d min", b.IntervalMinutes)
	}
	return fmt.Sprintf(
		"📊 <b>Stats</b>\n\nTotal users: %d\nActive 24h: %d\nActive 7d: %d\nActive 30d: %d\n\nGroup broadcast: %s",
		s.TotalUsers, s.ActiveDay, s.ActiveWeek, s.ActiveMonth, status,
	)
}
