// Package storetest holds behaviour checks shared by every AccountRepository backend.
package storetest

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/account/repository"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) repository.AccountRepository

var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// Run exercises the AccountRepository contract against the backend built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("GetOrCreateIsIdempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		a, created, err := repo.GetOrCreate(ctx, 101, "Ravi", base)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(0), a.Balance)
		assert.True(t, a.FirstSeenAt.Equal(base))

		again, created, err := repo.GetOrCreate(ctx, 101, "Someone Else", base.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "Ravi", again.DisplayName)
		assert.True(t, again.FirstSeenAt.Equal(base))
	})

	t.Run("FindUnknownReturnsNotFound", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Find(context.Background(), 404)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("SaveThenFind", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		lastAd := base.Add(-time.Minute)
		a := models.NewAccount(7, "Asha", base)
		a.Balance = 120
		a.ReferralCount = 2
		a.ReferredBy = 99
		a.PayoutAddress = "asha@upi"
		a.AdsWatchedToday = 4
		a.LastAdAt = &lastAd
		a.HasConfirmedMembership = true
		require.NoError(t, repo.Save(ctx, a))

		got, err := repo.Find(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(120), got.Balance)
		assert.Equal(t, int64(2), got.ReferralCount)
		assert.Equal(t, int64(99), got.ReferredBy)
		assert.Equal(t, "asha@upi", got.PayoutAddress)
		assert.Equal(t, 4, got.AdsWatchedToday)
		require.NotNil(t, got.LastAdAt)
		assert.True(t, got.LastAdAt.Equal(lastAd))
		assert.True(t, got.HasConfirmedMembership)
	})

	t.Run("UpdateAppliesMutation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, _, err := repo.GetOrCreate(ctx, 1, "A", base)
		require.NoError(t, err)

		updated, err := repo.Update(ctx, 1, func(a *models.Account) error {
			a.Balance += 3
			a.AdsWatchedToday++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), updated.Balance)
		assert.Greater(t, updated.Version, created.Version)

		stored, err := repo.Find(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stored.Balance)
		assert.Equal(t, 1, stored.AdsWatchedToday)
	})

	t.Run("UpdateErrorLeavesAccountUntouched", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, _, err := repo.GetOrCreate(ctx, 1, "A", base)
		require.NoError(t, err)

		refuse := stderrors.New("refused")
		_, err = repo.Update(ctx, 1, func(a *models.Account) error {
			a.Balance = 1000
			return refuse
		})
		assert.ErrorIs(t, err, refuse)

		stored, err := repo.Find(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stored.Balance)
	})

	t.Run("UpdateUnknownReturnsNotFound", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Update(context.Background(), 5, func(a *models.Account) error { return nil })
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("ConcurrentUpdatesAreNotLost", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, _, err := repo.GetOrCreate(ctx, 1, "A", base)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, 1, func(a *models.Account) error {
					a.Balance += 3
					return nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		stored, err := repo.Find(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3*writers), stored.Balance)
	})

	t.Run("WithdrawRecordsPayout", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		a := models.NewAccount(3, "C", base)
		a.Balance = 800
		a.PayoutAddress = "c@upi"
		require.NoError(t, repo.Save(ctx, a))

		var ids []string
		for i := 0; i < 2; i++ {
			at := base.Add(time.Duration(i) * time.Hour)
			_, payout, err := repo.Withdraw(ctx, 3, func(a *models.Account) (*models.Payout, error) {
				p := &models.Payout{
					ID:            uuid.NewString(),
					AccountID:     a.ID,
					Amount:        a.Balance,
					PayoutAddress: a.PayoutAddress,
					RequestedAt:   at,
				}
				a.Balance = 0
				return p, nil
			})
			require.NoError(t, err)
			require.NotNil(t, payout)
			ids = append(ids, payout.ID)
		}

		payouts, err := repo.ListPayouts(ctx, 3)
		require.NoError(t, err)
		require.Len(t, payouts, 2)
		assert.Equal(t, ids[1], payouts[0].ID)
		assert.Equal(t, ids[0], payouts[1].ID)
		assert.Equal(t, int64(800), payouts[1].Amount)
		assert.Equal(t, int64(0), payouts[0].Amount)

		empty, err := repo.ListPayouts(ctx, 999)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("BulkResetDailyCounters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for id := int64(1); id <= 3; id++ {
			a := models.NewAccount(id, "", base)
			a.AdsWatchedToday = int(id) * 5
			a.Balance = id
			require.NoError(t, repo.Save(ctx, a))
		}

		resetAt := base.Add(12 * time.Hour)
		n, err := repo.BulkResetDailyCounters(ctx, resetAt)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		for id := int64(1); id <= 3; id++ {
			a, err := repo.Find(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 0, a.AdsWatchedToday)
			assert.Equal(t, id, a.Balance)
			assert.True(t, a.LastCounterResetAt.Equal(resetAt))
		}
	})

	t.Run("ForEachIDVisitsEveryAccount", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		want := map[int64]bool{11: true, 22: true, 33: true}
		for id := range want {
			_, _, err := repo.GetOrCreate(ctx, id, "", base)
			require.NoError(t, err)
		}

		seen := map[int64]bool{}
		require.NoError(t, repo.ForEachID(ctx, func(id int64) error {
			seen[id] = true
			return nil
		}))
		assert.Equal(t, want, seen)

		stop := stderrors.New("stop")
		assert.ErrorIs(t, repo.ForEachID(ctx, func(int64) error { return stop }), stop)
	})

	t.Run("StatsCountsActivityWindows", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		offsets := []time.Duration{time.Hour, 3 * 24 * time.Hour, 20 * 24 * time.Hour, 60 * 24 * time.Hour}
		for i, off := range offsets {
			a := models.NewAccount(int64(i+1), "", base.Add(-90*24*time.Hour))
			a.LastActiveAt = base.Add(-off)
			require.NoError(t, repo.Save(ctx, a))
		}

		s, err := repo.Stats(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, int64(4), s.TotalUsers)
		assert.Equal(t, int64(1), s.ActiveDay)
		assert.Equal(t, int64(2), s.ActiveWeek)
		assert.Equal(t, int64(3), s.ActiveMonth)
	})

	t.Run("BroadcastSettingsDefaultAndSave", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		s, err := repo.GetBroadcastSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultBroadcastIntervalMinutes, s.IntervalMinutes)
		assert.False(t, s.Runnable())

		require.NoError(t, repo.SaveBroadcastSettings(ctx, &models.BroadcastSettings{
			Message:         "Join our giveaway",
			IntervalMinutes: 15,
			Enabled:         true,
			UpdatedAt:       base,
		}))

		s, err = repo.GetBroadcastSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Join our giveaway", s.Message)
		assert.Equal(t, 15, s.IntervalMinutes)
		assert.True(t, s.Runnable())
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, newRepo(t).Ping(context.Background()))
	})
}
