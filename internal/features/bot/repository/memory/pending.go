package memory

import (
	"context"
	"sync"
	"time"

	"github.com/open-builders/adkamai/internal/features/bot/models"
	"github.com/open-builders/adkamai/internal/features/bot/repository"
)

type entry struct {
	input     models.PendingInput
	expiresAt time.Time
}

type pendingStore struct {
	mu      sync.Mutex
	entries map[int64]entry
	now     func() time.Time
}

// NewPendingStore returns a process-local PendingStore. Expired entries are
// dropped lazily on access.
func NewPendingStore() repository.PendingStore {
	return NewPendingStoreWithClock(time.Now)
}

func NewPendingStoreWithClock(now func() time.Time) repository.PendingStore {
	return &pendingStore{entries: make(map[int64]entry), now: now}
}

func (s *pendingStore) Put(_ context.Context, userID int64, p *models.PendingInput, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = entry{input: *p, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *pendingStore) Take(_ context.Context, userID int64) (*models.PendingInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil, nil
	}
	delete(s.entries, userID)
	if !s.now().Before(e.expiresAt) {
		return nil, nil
	}
	p := e.input
	return &p, nil
}
