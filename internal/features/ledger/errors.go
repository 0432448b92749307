package ledger

import (
	"errors"
	"fmt"
)

// Reason names a business rule that refused an operation.
type Reason string

const (
	ReasonDailyLimitReached     Reason = "daily_limit_reached"
	ReasonTooSoon               Reason = "too_soon"
	ReasonBelowMinimumBalance   Reason = "below_minimum_balance"
	ReasonInsufficientReferrals Reason = "insufficient_referrals"
	ReasonTooNew                Reason = "too_new"
	ReasonMissingPayoutAddress  Reason = "missing_payout_address"
)

// Rejection is a recoverable refusal. It is user-facing, not a fault.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected: %s", r.Reason)
}

func reject(reason Reason) error {
	return &Rejection{Reason: reason}
}

// AsRejection extracts a Rejection from err's chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsRejected reports whether err is a Rejection for reason.
func IsRejected(err error, reason Reason) bool {
	r, ok := AsRejection(err)
	return ok && r.Reason == reason
}

// ErrUnknownAccount is returned when an operation targets an id with no account.
var ErrUnknownAccount = errors.New("unknown account")
