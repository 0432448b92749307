package repository

import (
	"context"
	"errors"
	"time"

	"github.com/open-builders/adkamai/internal/features/account/models"
)

// ErrNotFound is returned by Find, Update and Withdraw for unknown ids.
var ErrNotFound = errors.New("account not found")

// ErrConflict is returned when an optimistic update kept losing races.
var ErrConflict = errors.New("account update conflict")

// UpdateFunc mutates an account in place. Returning an error aborts the
// update without writing anything; the error is passed through unchanged.
type UpdateFunc func(a *models.Account) error

// WithdrawFunc is UpdateFunc that also yields the payout to record.
type WithdrawFunc func(a *models.Account) (*models.Payout, error)

// AccountRepository is the durable account store. All storage failures are
// returned as errors.ErrCodeDatabaseError AppErrors.
type AccountRepository interface {
	// GetOrCreate returns the stored account or creates a zero-balance one.
	GetOrCreate(ctx context.Context, id int64, displayName string, now time.Time) (*models.Account, bool, error)
	Find(ctx context.Context, id int64) (*models.Account, error)
	// Save is a blind full-record upsert.
	Save(ctx context.Context, a *models.Account) error
	// Update applies fn atomically with respect to other writers of the same account.
	Update(ctx context.Context, id int64, fn UpdateFunc) (*models.Account, error)
	// Withdraw is Update plus persisting the returned payout in the same atomic unit.
	Withdraw(ctx context.Context, id int64, fn WithdrawFunc) (*models.Account, *models.Payout, error)
	// BulkResetDailyCounters zeroes AdsWatchedToday on every account.
	BulkResetDailyCounters(ctx context.Context, now time.Time) (int64, error)
	ForEachID(ctx context.Context, fn func(id int64) error) error
	Stats(ctx context.Context, now time.Time) (*models.Stats, error)
	// ListPayouts returns an account's recorded payouts, newest first.
	ListPayouts(ctx context.Context, accountID int64) ([]models.Payout, error)

	GetBroadcastSettings(ctx context.Context) (*models.BroadcastSettings, error)
	SaveBroadcastSettings(ctx context.Context, s *models.BroadcastSettings) error

	Ping(ctx context.Context) error
}

// MaxUpdateAttempts bounds optimistic retries in CAS-based backends.
const MaxUpdateAttempts = 8

// WithTimeout bounds a single store call. A non-positive d leaves ctx's own deadline in charge.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
