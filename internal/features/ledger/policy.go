package ledger

import "time"

// Policy holds every earning and withdrawal threshold.
type Policy struct {
	AdReward              int64
	ReferralReward        int64
	DailyAdLimit          int
	MinSecondsBetweenAds  int
	MinWithdrawBalance    int64
	MinReferrals          int64
	MinDaysBeforeWithdraw int
	// FullWithdrawReferrals is a second, higher referral floor. Zero disables it.
	FullWithdrawReferrals int64
	// Location decides where calendar days start. Nil means UTC.
	Location *time.Location
}

// DefaultPolicy returns the thresholds the bot ships with.
func DefaultPolicy() Policy {
	return Policy{
		AdReward:              3,
		ReferralReward:        50,
		DailyAdLimit:          20,
		MinSecondsBetweenAds:  30,
		MinWithdrawBalance:    500,
		MinReferrals:          5,
		MinDaysBeforeWithdraw: 3,
		Location:              time.UTC,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// SameDay compares the calendar dates of a and b in the policy location.
func (p Policy) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(p.location()).Date()
	by, bm, bd := b.In(p.location()).Date()
	return ay == by && am == bm && ad == bd
}

// AdCooldown is the enforced gap between credited ads: one second under the
// advertised minimum to absorb clock skew between the ad page and the server.
func (p Policy) AdCooldown() time.Duration {
	if p.MinSecondsBetweenAds <= 1 {
		return 0
	}
	return time.Duration(p.MinSecondsBetweenAds-1) * time.Second
}

// RequiredReferrals is the referral floor a withdrawal must clear.
func (p Policy) RequiredReferrals() int64 {
	if p.FullWithdrawReferrals > p.MinReferrals {
		return p.FullWithdrawReferrals
	}
	return p.MinReferrals
}
