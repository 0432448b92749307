package ledger

import (
	"time"

	"github.com/open-builders/adkamai/internal/features/account/models"
)

// EnsureDailyCounterCurrent zeroes the ad counter when now falls on a
// different calendar day than the last reset, earlier days included. It
// reports whether anything changed.
func (p Policy) EnsureDailyCounterCurrent(a *models.Account, now time.Time) bool {
	if p.SameDay(a.LastCounterResetAt, now) {
		return false
	}
	a.AdsWatchedToday = 0
	a.LastCounterResetAt = now
	return true
}

// CheckAdAllowed runs the quota and cooldown checks without crediting.
func (p Policy) CheckAdAllowed(a *models.Account, now time.Time) error {
	p.EnsureDailyCounterCurrent(a, now)
	if a.AdsWatchedToday >= p.DailyAdLimit {
		return reject(ReasonDailyLimitReached)
	}
	if a.LastAdAt != nil && now.Sub(*a.LastAdAt) < p.AdCooldown() {
		return reject(ReasonTooSoon)
	}
	return nil
}

// CreditAdView pays for one watched ad and returns the new balance.
func (p Policy) CreditAdView(a *models.Account, now time.Time) (int64, error) {
	if err := p.CheckAdAllowed(a, now); err != nil {
		return 0, err
	}
	a.Balance += p.AdReward
	a.AdsWatchedToday++
	watched := now
	a.LastAdAt = &watched
	return a.Balance, nil
}

// MarkReferred links newAcc to referrerID unless it is already linked or self-referred.
func (p Policy) MarkReferred(newAcc *models.Account, referrerID int64) bool {
	if referrerID == 0 || referrerID == newAcc.ID || newAcc.ReferredBy != 0 {
		return false
	}
	newAcc.ReferredBy = referrerID
	return true
}

// CreditReferrer pays the referral bonus and returns the referrer's new balance.
func (p Policy) CreditReferrer(referrer *models.Account) int64 {
	referrer.Balance += p.ReferralReward
	referrer.ReferralCount++
	return referrer.Balance
}

// ApplyReferral attributes newAcc to referrer. A nil referrer, a self-referral
// or an already attributed account is a no-op and reports false.
func (p Policy) ApplyReferral(newAcc, referrer *models.Account) (int64, bool) {
	if referrer == nil || !p.MarkReferred(newAcc, referrer.ID) {
		return 0, false
	}
	return p.CreditReferrer(referrer), true
}

// CheckWithdraw evaluates the withdrawal gates in priority order.
func (p Policy) CheckWithdraw(a *models.Account, now time.Time) error {
	if a.PayoutAddress == "" {
		return reject(ReasonMissingPayoutAddress)
	}
	if a.Balance < p.MinWithdrawBalance {
		return reject(ReasonBelowMinimumBalance)
	}
	if a.ReferralCount < p.RequiredReferrals() {
		return reject(ReasonInsufficientReferrals)
	}
	if DaysSince(a.FirstSeenAt, now) < p.MinDaysBeforeWithdraw {
		return reject(ReasonTooNew)
	}
	return nil
}

// AttemptWithdraw zeroes the balance when every gate passes and returns the payout amount.
func (p Policy) AttemptWithdraw(a *models.Account, now time.Time) (int64, error) {
	if err := p.CheckWithdraw(a, now); err != nil {
		return 0, err
	}
	amount := a.Balance
	a.Balance = 0
	return amount, nil
}

// DaysSince is the number of whole days elapsed from since to now.
func DaysSince(since, now time.Time) int {
	if now.Before(since) {
		return 0
	}
	return int(now.Sub(since) / (24 * time.Hour))
}
