package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/account/repository"
)

// accountRepository keeps accounts in process memory. Used by tests and by
// STORE_DRIVER=memory for local runs; nothing survives a restart.
type accountRepository struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	payouts  map[int64][]models.Payout
	settings *models.BroadcastSettings
}

func NewAccountRepository() repository.AccountRepository {
	return &accountRepository{
		accounts: make(map[int64]*models.Account),
		payouts:  make(map[int64][]models.Payout),
	}
}

func (r *accountRepository) GetOrCreate(ctx context.Context, id int64, displayName string, now time.Time) (*models.Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok {
		return a.Clone(), false, nil
	}
	a := models.NewAccount(id, displayName, now)
	a.Version = 1
	r.accounts[id] = a
	return a.Clone(), true, nil
}

func (r *accountRepository) Find(ctx context.Context, id int64) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *accountRepository) Save(ctx context.Context, a *models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := a.Clone()
	stored.Version++
	r.accounts[a.ID] = stored
	a.Version = stored.Version
	return nil
}

func (r *accountRepository) Update(ctx context.Context, id int64, fn repository.UpdateFunc) (*models.Account, error) {
	a, _, err := r.Withdraw(ctx, id, func(a *models.Account) (*models.Payout, error) {
		return nil, fn(a)
	})
	return a, err
}

func (r *accountRepository) Withdraw(ctx context.Context, id int64, fn repository.WithdrawFunc) (*models.Account, *models.Payout, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.accounts[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	working := current.Clone()
	payout, err := fn(working)
	if err != nil {
		return nil, nil, err
	}
	working.ID = id
	working.Version = current.Version + 1
	r.accounts[id] = working
	if payout != nil {
		r.payouts[id] = append(r.payouts[id], *payout)
	}
	return working.Clone(), payout, nil
}

func (r *accountRepository) BulkResetDailyCounters(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		a.AdsWatchedToday = 0
		a.LastCounterResetAt = now
		a.Version++
	}
	return int64(len(r.accounts)), nil
}

func (r *accountRepository) ForEachID(ctx context.Context, fn func(id int64) error) error {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (r *accountRepository) Stats(ctx context.Context, now time.Time) (*models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &models.Stats{TotalUsers: int64(len(r.accounts))}
	for _, a := range r.accounts {
		if !a.LastActiveAt.Before(now.Add(-models.ActiveDayWindow)) {
			s.ActiveDay++
		}
		if !a.LastActiveAt.Before(now.Add(-models.ActiveWeekWindow)) {
			s.ActiveWeek++
		}
		if !a.LastActiveAt.Before(now.Add(-models.ActiveMonthWindow)) {
			s.ActiveMonth++
		}
	}
	return s, nil
}

func (r *accountRepository) ListPayouts(ctx context.Context, accountID int64) ([]models.Payout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.payouts[accountID]
	out := make([]models.Payout, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (r *accountRepository) GetBroadcastSettings(ctx context.Context) (*models.BroadcastSettings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settings == nil {
		return models.DefaultBroadcastSettings(), nil
	}
	s := *r.settings
	return &s, nil
}

func (r *accountRepository) SaveBroadcastSettings(ctx context.Context, s *models.BroadcastSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *s
	r.settings = &c
	return nil
}

func (r *accountRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
