package repository

import (
	"context"
	"time"

	"github.com/open-builders/adkamai/internal/features/bot/models"
)

// PendingStore keeps at most one pending input per user, expiring after a TTL.
type PendingStore interface {
	Put(ctx context.Context, userID int64, p *models.PendingInput, ttl time.Duration) error
	// Take removes and returns the pending input, or nil when there is none.
	Take(ctx context.Context, userID int64) (*models.PendingInput, error)
}
