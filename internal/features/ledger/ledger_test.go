package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-builders/adkamai/internal/features/account/models"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestEnsureDailyCounterCurrent(t *testing.T) {
	p := DefaultPolicy()

	t.Run("same day leaves counter", func(t *testing.T) {
		a := models.NewAccount(1, "", t0)
		a.AdsWatchedToday = 7

		assert.False(t, p.EnsureDailyCounterCurrent(a, t0.Add(10*time.Hour)))
		assert.Equal(t, 7, a.AdsWatchedToday)
		assert.True(t, a.LastCounterResetAt.Equal(t0))
	})

	t.Run("next day zeroes counter once", func(t *testing.T) {
		a := models.NewAccount(1, "", t0)
		a.AdsWatchedToday = 7
		next := t0.Add(15 * time.Hour)

		assert.True(t, p.EnsureDailyCounterCurrent(a, next))
		assert.Equal(t, 0, a.AdsWatchedToday)
		assert.True(t, a.LastCounterResetAt.Equal(next))

		a.AdsWatchedToday = 2
		assert.False(t, p.EnsureDailyCounterCurrent(a, next.Add(time.Minute)))
		assert.Equal(t, 2, a.AdsWatchedToday)
	})

	t.Run("earlier day also zeroes counter", func(t *testing.T) {
		a := models.NewAccount(1, "", t0)
		a.AdsWatchedToday = 7
		earlier := t0.Add(-24 * time.Hour)

		assert.True(t, p.EnsureDailyCounterCurrent(a, earlier))
		assert.Equal(t, 0, a.AdsWatchedToday)
		assert.True(t, a.LastCounterResetAt.Equal(earlier))
	})

	t.Run("calendar date follows policy location", func(t *testing.T) {
		ist, err := time.LoadLocation("Asia/Kolkata")
		require.NoError(t, err)
		p := DefaultPolicy()
		p.Location = ist

		// 18:00 UTC and 19:00 UTC are the same UTC date but straddle midnight in IST.
		reset := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
		a := models.NewAccount(1, "", reset)
		a.AdsWatchedToday = 4

		assert.True(t, p.EnsureDailyCounterCurrent(a, reset.Add(time.Hour)))
		assert.Equal(t, 0, a.AdsWatchedToday)
	})
}

func TestCreditAdView(t *testing.T) {
	p := DefaultPolicy()

	t.Run("credits reward", func(t *testing.T) {
		a := models.NewAccount(1, "", t0)

		balance, err := p.CreditAdView(a, t0)
		require.NoError(t, err)
		assert.Equal(t, p.AdReward, balance)
		assert.Equal(t, 1, a.AdsWatchedToday)
		require.NotNil(t, a.LastAdAt)
		assert.True(t, a.LastAdAt.Equal(t0))
	})

	t.Run("daily limit", func(t *testing.T) {
		a := models.NewAccount(1, "", t0)
		a.AdsWatchedToday = p.DailyAdLimit
		a.Balance = 60

		_, err := p.CreditAdView(a, t0.Add(time.Hour))
		assert.True(t, IsRejected(err, ReasonDailyLimitReached))
		assert.Equal(t, int64(60), a.Balance)
		assert.Equal(t, p.DailyAdLimit, a.AdsWatchedToday)
	})

	t.Run("limit is lifted on a new day before the check", func(t *testing.T) {
		a := models.NewAccount(1, "", t0)
		a.AdsWatchedToday = p.DailyAdLimit

		_, err := p.CreditAdView(a, t0.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, a.AdsWatchedToday)
	})

	t.Run("cooldown boundaries", func(t *testing.T) {
		nominal := time.Duration(p.MinSecondsBetweenAds) * time.Second

		cases := []struct {
			gap     time.Duration
			tooSoon bool
		}{
			{gap: time.Second, tooSoon: true},
			{gap: nominal - 1500*time.Millisecond, tooSoon: true},
			{gap: nominal - time.Second, tooSoon: false},
			{gap: nominal, tooSoon: false},
		}
		for _, tc := range cases {
			a := models.NewAccount(1, "", t0)
			_, err := p.CreditAdView(a, t0)
			require.NoError(t, err)

			_, err = p.CreditAdView(a, t0.Add(tc.gap))
			if tc.tooSoon {
				assert.True(t, IsRejected(err, ReasonTooSoon), "gap %s", tc.gap)
				assert.Equal(t, p.AdReward, a.Balance)
			} else {
				assert.NoError(t, err, "gap %s", tc.gap)
				assert.Equal(t, 2*p.AdReward, a.Balance)
			}
		}
	})

	t.Run("counter never exceeds limit", func(t *testing.T) {
		a := models.NewAccount(1, "", t0)
		now := t0
		for i := 0; i < p.DailyAdLimit+5; i++ {
			_, _ = p.CreditAdView(a, now)
			now = now.Add(time.Duration(p.MinSecondsBetweenAds) * time.Second)
		}
		assert.Equal(t, p.DailyAdLimit, a.AdsWatchedToday)
		assert.Equal(t, int64(p.DailyAdLimit)*p.AdReward, a.Balance)
	})
}

func TestApplyReferral(t *testing.T) {
	p := DefaultPolicy()

	t.Run("credits referrer once", func(t *testing.T) {
		referrer := models.NewAccount(10, "", t0)
		newAcc := models.NewAccount(20, "", t0)

		balance, ok := p.ApplyReferral(newAcc, referrer)
		require.True(t, ok)
		assert.Equal(t, p.ReferralReward, balance)
		assert.Equal(t, int64(1), referrer.ReferralCount)
		assert.Equal(t, int64(10), newAcc.ReferredBy)

		_, ok = p.ApplyReferral(newAcc, referrer)
		assert.False(t, ok)
		assert.Equal(t, p.ReferralReward, referrer.Balance)
		assert.Equal(t, int64(1), referrer.ReferralCount)
	})

	t.Run("self referral", func(t *testing.T) {
		a := models.NewAccount(10, "", t0)

		_, ok := p.ApplyReferral(a, a)
		assert.False(t, ok)
		assert.Equal(t, int64(0), a.ReferredBy)
		assert.Equal(t, int64(0), a.Balance)
	})

	t.Run("missing referrer", func(t *testing.T) {
		a := models.NewAccount(20, "", t0)

		_, ok := p.ApplyReferral(a, nil)
		assert.False(t, ok)
		assert.Equal(t, int64(0), a.ReferredBy)
	})

	t.Run("already referred by someone else", func(t *testing.T) {
		referrer := models.NewAccount(10, "", t0)
		a := models.NewAccount(20, "", t0)
		a.ReferredBy = 30

		_, ok := p.ApplyReferral(a, referrer)
		assert.False(t, ok)
		assert.Equal(t, int64(30), a.ReferredBy)
		assert.Equal(t, int64(0), referrer.Balance)
	})
}

func TestAttemptWithdrawPriority(t *testing.T) {
	p := DefaultPolicy()
	eligible := func() *models.Account {
		a := models.NewAccount(1, "", t0)
		a.PayoutAddress = "ravi@upi"
		a.Balance = p.MinWithdrawBalance
		a.ReferralCount = p.MinReferrals
		return a
	}
	later := t0.Add(time.Duration(p.MinDaysBeforeWithdraw) * 24 * time.Hour)

	cases := []struct {
		name   string
		mutate func(a *models.Account)
		now    time.Time
		want   Reason
	}{
		{"missing address beats low balance", func(a *models.Account) { a.PayoutAddress = ""; a.Balance = 10 }, later, ReasonMissingPayoutAddress},
		{"low balance beats referrals", func(a *models.Account) { a.Balance = 499; a.ReferralCount = 0 }, later, ReasonBelowMinimumBalance},
		{"referrals beat age", func(a *models.Account) { a.ReferralCount = 4 }, t0, ReasonInsufficientReferrals},
		{"too new", func(a *models.Account) {}, t0.Add(24 * time.Hour), ReasonTooNew},
		{"just under three days", func(a *models.Account) {}, later.Add(-time.Second), ReasonTooNew},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := eligible()
			tc.mutate(a)
			before := a.Balance

			_, err := p.AttemptWithdraw(a, tc.now)
			assert.True(t, IsRejected(err, tc.want), "got %v", err)
			assert.Equal(t, before, a.Balance)
		})
	}
}

func TestAttemptWithdrawFullReferralThreshold(t *testing.T) {
	p := DefaultPolicy()
	p.FullWithdrawReferrals = 15

	a := models.NewAccount(1, "", t0)
	a.PayoutAddress = "x"
	a.Balance = 900
	a.ReferralCount = 5

	_, err := p.AttemptWithdraw(a, t0.Add(10*24*time.Hour))
	assert.True(t, IsRejected(err, ReasonInsufficientReferrals))

	a.ReferralCount = 15
	amount, err := p.AttemptWithdraw(a, t0.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(900), amount)
}

func TestLifecycleScenario(t *testing.T) {
	p := DefaultPolicy()
	a := models.NewAccount(1, "Ravi", t0)
	a.PayoutAddress = "ravi@upi"

	balance, err := p.CreditAdView(a, t0)
	require.NoError(t, err)
	assert.Equal(t, p.AdReward, balance)

	for i := int64(0); i < 5; i++ {
		_, ok := p.ApplyReferral(models.NewAccount(100+i, "", t0), a)
		require.True(t, ok)
	}
	assert.Equal(t, int64(5), a.ReferralCount)

	a.Balance = 500
	_, err = p.AttemptWithdraw(a, t0.Add(24*time.Hour))
	assert.True(t, IsRejected(err, ReasonTooNew))

	amount, err := p.AttemptWithdraw(a, t0.Add(3*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(500), amount)
	assert.Equal(t, int64(0), a.Balance)
}

func TestDaysSince(t *testing.T) {
	assert.Equal(t, 0, DaysSince(t0, t0.Add(23*time.Hour)))
	assert.Equal(t, 1, DaysSince(t0, t0.Add(47*time.Hour)))
	assert.Equal(t, 3, DaysSince(t0, t0.Add(72*time.Hour)))
	assert.Equal(t, 0, DaysSince(t0, t0.Add(-time.Hour)))
}
