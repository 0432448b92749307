package ledger

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/account/repository"
	"github.com/open-builders/adkamai/internal/features/account/repository/memory"
)

type recordingPublisher struct {
	mu      sync.Mutex
	payouts []*models.Payout
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, payout *models.Payout) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payouts = append(p.payouts, payout)
	return p.err
}

// failingUpdates fails Update calls for one account id.
type failingUpdates struct {
	repository.AccountRepository
	failID int64
}

func (f *failingUpdates) Update(ctx context.Context, id int64, fn repository.UpdateFunc) (*models.Account, error) {
	if id == f.failID {
		return nil, apperrors.NewDatabaseError("update account", stderrors.New("timeout"))
	}
	return f.AccountRepository.Update(ctx, id, fn)
}

func newTestService(t *testing.T) (Service, repository.AccountRepository, *recordingPublisher) {
	t.Helper()
	repo := memory.NewAccountRepository()
	pub := &recordingPublisher{}
	return NewService(repo, DefaultPolicy(), pub), repo, pub
}

func TestTouchCreatesAndRefreshes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	a, created, err := svc.Touch(ctx, 1, "Ravi", t0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Ravi", a.DisplayName)

	_, err = repo.Update(ctx, 1, func(a *models.Account) error {
		a.AdsWatchedToday = 9
		return nil
	})
	require.NoError(t, err)

	a, created, err = svc.Touch(ctx, 1, "Ravi K", t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 0, a.AdsWatchedToday)
	assert.Equal(t, "Ravi K", a.DisplayName)
	assert.True(t, a.LastActiveAt.Equal(t0.Add(24*time.Hour)))
	assert.True(t, a.FirstSeenAt.Equal(t0))
}

func TestCreditAdViewUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreditAdView(context.Background(), 404, t0)
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestCreditAdViewPersists(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Touch(ctx, 1, "", t0)
	require.NoError(t, err)

	balance, err := svc.CreditAdView(ctx, 1, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)

	_, err = svc.CreditAdView(ctx, 1, t0.Add(5*time.Second))
	assert.True(t, IsRejected(err, ReasonTooSoon))

	stored, err := repo.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Balance)
	assert.Equal(t, 1, stored.AdsWatchedToday)
}

func TestConcurrentAdCreditsDoNotDoublePay(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Touch(ctx, 1, "", t0)
	require.NoError(t, err)

	var ok, tooSoon int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreditAdView(ctx, 1, t0)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case IsRejected(err, ReasonTooSoon):
				atomic.AddInt32(&tooSoon, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(19), tooSoon)
	stored, err := repo.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Balance)
}

func TestAdCreditsOnManyAccountsStayIsolated(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	policy := svc.Policy()

	const accounts, credits = 6, 10
	for id := int64(1); id <= accounts+2; id++ {
		_, _, err := svc.Touch(ctx, id, "", t0)
		require.NoError(t, err)
	}

	spacing := time.Duration(policy.MinSecondsBetweenAds) * time.Second
	errs := make(chan error, accounts*credits)
	var wg sync.WaitGroup
	for id := int64(1); id <= accounts; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for k := 0; k < credits; k++ {
				if _, err := svc.CreditAdView(ctx, id, t0.Add(time.Duration(k)*spacing)); err != nil {
					errs <- err
				}
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	for id := int64(1); id <= accounts; id++ {
		stored, err := repo.Find(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(credits)*policy.AdReward, stored.Balance, "account %d", id)
		assert.Equal(t, credits, stored.AdsWatchedToday, "account %d", id)
	}
	// Accounts nobody credited are untouched.
	for id := int64(accounts + 1); id <= accounts+2; id++ {
		stored, err := repo.Find(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, stored.Balance)
		assert.Zero(t, stored.AdsWatchedToday)
	}
}

func TestAttributeReferral(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	for _, id := range []int64{10, 20} {
		_, _, err := svc.Touch(ctx, id, "", t0)
		require.NoError(t, err)
	}

	balance, ok, err := svc.AttributeReferral(ctx, 20, 10, t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(50), balance)

	_, ok, err = svc.AttributeReferral(ctx, 20, 10, t0)
	require.NoError(t, err)
	assert.False(t, ok, "second attribution must be a no-op")

	referrer, err := repo.Find(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(50), referrer.Balance)
	assert.Equal(t, int64(1), referrer.ReferralCount)

	referred, err := repo.Find(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(10), referred.ReferredBy)
}

func TestAttributeReferralNoOps(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Touch(ctx, 20, "", t0)
	require.NoError(t, err)

	for name, referrerID := range map[string]int64{"absent": 0, "self": 20, "unknown referrer": 999} {
		t.Run(name, func(t *testing.T) {
			_, ok, err := svc.AttributeReferral(ctx, 20, referrerID, t0)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	a, err := repo.Find(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.ReferredBy)
}

func TestAttributeReferralUndoesMarkWhenCreditFails(t *testing.T) {
	base := memory.NewAccountRepository()
	ctx := context.Background()
	for _, id := range []int64{10, 20} {
		_, _, err := base.GetOrCreate(ctx, id, "", t0)
		require.NoError(t, err)
	}
	svc := NewService(&failingUpdates{AccountRepository: base, failID: 10}, DefaultPolicy(), nil)

	_, ok, err := svc.AttributeReferral(ctx, 20, 10, t0)
	require.Error(t, err)
	assert.False(t, ok)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDatabaseError, appErr.Code)

	referred, err := base.Find(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), referred.ReferredBy)
}

func TestAttemptWithdrawRecordsAndPublishes(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()
	a := models.NewAccount(1, "Ravi", t0)
	a.Balance = 640
	a.ReferralCount = 5
	a.PayoutAddress = "ravi@upi"
	require.NoError(t, repo.Save(ctx, a))

	_, err := svc.AttemptWithdraw(ctx, 1, t0.Add(24*time.Hour))
	assert.True(t, IsRejected(err, ReasonTooNew))
	assert.Empty(t, pub.payouts)

	payout, err := svc.AttemptWithdraw(ctx, 1, t0.Add(3*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(640), payout.Amount)
	assert.Equal(t, "ravi@upi", payout.PayoutAddress)
	assert.NotEmpty(t, payout.ID)

	stored, err := repo.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Balance)

	recorded, err := repo.ListPayouts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, payout.ID, recorded[0].ID)

	require.Len(t, pub.payouts, 1)
	assert.Equal(t, payout.ID, pub.payouts[0].ID)
}

func TestAttemptWithdrawSucceedsWhenPublishFails(t *testing.T) {
	svc, repo, pub := newTestService(t)
	pub.err = stderrors.New("stream unavailable")
	ctx := context.Background()
	a := models.NewAccount(1, "", t0)
	a.Balance = 500
	a.ReferralCount = 5
	a.PayoutAddress = "x"
	require.NoError(t, repo.Save(ctx, a))

	payout, err := svc.AttemptWithdraw(ctx, 1, t0.Add(5*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(500), payout.Amount)
}

func TestConcurrentWithdrawAndCreditLoseNothing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	a := models.NewAccount(1, "", t0)
	a.Balance = 600
	a.ReferralCount = 5
	a.PayoutAddress = "x"
	require.NoError(t, repo.Save(ctx, a))
	now := t0.Add(4 * 24 * time.Hour)

	var wg sync.WaitGroup
	var payout *models.Payout
	wg.Add(2)
	go func() {
		defer wg.Done()
		p, err := svc.AttemptWithdraw(ctx, 1, now)
		if err == nil {
			payout = p
		}
	}()
	go func() {
		defer wg.Done()
		_, _ = svc.CreditAdView(ctx, 1, now)
	}()
	wg.Wait()

	require.NotNil(t, payout)
	stored, err := repo.Find(ctx, 1)
	require.NoError(t, err)
	// Either the credit landed before the withdrawal and was paid out, or after it and remains.
	assert.Equal(t, int64(603), payout.Amount+stored.Balance)
}

func TestSetPayoutAddress(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Touch(ctx, 1, "", t0)
	require.NoError(t, err)

	_, err = svc.SetPayoutAddress(ctx, 1, "   ")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.True(t, appErr.IsValidation())

	a, err := svc.SetPayoutAddress(ctx, 1, "  ravi@upi \n")
	require.NoError(t, err)
	assert.Equal(t, "ravi@upi", a.PayoutAddress)

	_, err = svc.SetPayoutAddress(ctx, 2, "x")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestConfirmMembershipIsSticky(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Touch(ctx, 1, "", t0)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmMembership(ctx, 1))
	require.NoError(t, svc.ConfirmMembership(ctx, 1))

	a, err := svc.Account(ctx, 1)
	require.NoError(t, err)
	assert.True(t, a.HasConfirmedMembership)

	assert.ErrorIs(t, svc.ConfirmMembership(ctx, 2), ErrUnknownAccount)
}

func TestUpdateBroadcastSettings(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s, err := svc.UpdateBroadcastSettings(ctx, func(s *models.BroadcastSettings) {
		s.Message = "Daily giveaway in the group!"
		s.Enabled = true
	}, t0)
	require.NoError(t, err)
	assert.True(t, s.Runnable())
	assert.Equal(t, models.DefaultBroadcastIntervalMinutes, s.IntervalMinutes)

	stored, err := svc.BroadcastSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Daily giveaway in the group!", stored.Message)
	assert.True(t, stored.UpdatedAt.Equal(t0))
}
