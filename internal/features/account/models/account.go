package models

import "time"

// Account is one Telegram user's balance, referral and eligibility state.
// @Description Reward account of a Telegram user
type Account struct {
	ID                     int64      `json:"id" example:"123456789"`
	DisplayName            string     `json:"display_name" example:"Ravi"`
	FirstSeenAt            time.Time  `json:"first_seen_at"`
	Balance                int64      `json:"balance" example:"153"`
	ReferralCount          int64      `json:"referral_count" example:"4"`
	ReferredBy             int64      `json:"referred_by,omitempty" example:"987654321"`
	PayoutAddress          string     `json:"payout_address,omitempty" example:"ravi@upi"`
	AdsWatchedToday        int        `json:"ads_watched_today" example:"6"`
	LastAdAt               *time.Time `json:"last_ad_at,omitempty"`
	LastCounterResetAt     time.Time  `json:"last_counter_reset_at"`
	HasConfirmedMembership bool       `json:"has_confirmed_membership"`
	LastActiveAt           time.Time  `json:"last_active_at"`
	Version                int64      `json:"version"`
}

// NewAccount returns a zero-balance account first seen at now.
func NewAccount(id int64, displayName string, now time.Time) *Account {
	return &Account{
		ID:                 id,
		DisplayName:        displayName,
		FirstSeenAt:        now,
		LastCounterResetAt: now,
		LastActiveAt:       now,
	}
}

// Clone returns a deep copy so callers never share the LastAdAt pointer.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastAdAt != nil {
		t := *a.LastAdAt
		c.LastAdAt = &t
	}
	return &c
}

// Payout is a recorded withdrawal request awaiting manual processing.
type Payout struct {
	ID            string    `json:"id"`
	AccountID     int64     `json:"account_id"`
	Amount        int64     `json:"amount"`
	PayoutAddress string    `json:"payout_address"`
	RequestedAt   time.Time `json:"requested_at"`
}

// BroadcastSettings is the singleton admin configuration of the periodic group broadcast.
type BroadcastSettings struct {
	Message         string    `json:"message"`
	IntervalMinutes int       `json:"interval_minutes"`
	Enabled         bool      `json:"enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultBroadcastIntervalMinutes applies until an admin sets an interval.
const DefaultBroadcastIntervalMinutes = 60

// DefaultBroadcastSettings is returned when nothing has been stored yet.
func DefaultBroadcastSettings() *BroadcastSettings {
	return &BroadcastSettings{IntervalMinutes: DefaultBroadcastIntervalMinutes}
}

// Runnable reports whether the periodic broadcast should be scheduled.
func (s *BroadcastSettings) Runnable() bool {
	return s != nil && s.Enabled && s.Message != "" && s.IntervalMinutes > 0
}

// Stats summarises the user base for the /stats admin command.
type Stats struct {
	TotalUsers  int64 `json:"total_users"`
	ActiveDay   int64 `json:"active_day"`
	ActiveWeek  int64 `json:"active_week"`
	ActiveMonth int64 `json:"active_month"`
}

// Activity windows used by Stats.
const (
	ActiveDayWindow   = 24 * time.Hour
	ActiveWeekWindow  = 7 * 24 * time.Hour
	ActiveMonthWindow = 30 * 24 * time.Hour
)
