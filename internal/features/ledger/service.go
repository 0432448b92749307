package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/common/logger"
	"github.com/open-builders/adkamai/internal/common/validation"
	"github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/account/repository"
)

// PayoutPublisher hands a recorded payout to the operator-facing process.
type PayoutPublisher interface {
	Publish(ctx context.Context, p *models.Payout) error
}

// Service applies the ledger rules against the account store.
type Service interface {
	Policy() Policy
	// Touch fetches or creates the account and refreshes its daily counter and activity time.
	Touch(ctx context.Context, id int64, displayName string, now time.Time) (*models.Account, bool, error)
	Account(ctx context.Context, id int64) (*models.Account, error)
	CreditAdView(ctx context.Context, id int64, now time.Time) (int64, error)
	// AttributeReferral returns the referrer's new balance, or false when nothing was attributed.
	AttributeReferral(ctx context.Context, newID, referrerID int64, now time.Time) (int64, bool, error)
	AttemptWithdraw(ctx context.Context, id int64, now time.Time) (*models.Payout, error)
	SetPayoutAddress(ctx context.Context, id int64, address string) (*models.Account, error)
	ConfirmMembership(ctx context.Context, id int64) error
	// Payouts lists the account's recorded withdrawals, newest first.
	Payouts(ctx context.Context, id int64) ([]models.Payout, error)

	Stats(ctx context.Context, now time.Time) (*models.Stats, error)
	BroadcastSettings(ctx context.Context) (*models.BroadcastSettings, error)
	UpdateBroadcastSettings(ctx context.Context, fn func(s *models.BroadcastSettings), now time.Time) (*models.BroadcastSettings, error)
	ForEachAccount(ctx context.Context, fn func(id int64) error) error
}

type service struct {
	repo      repository.AccountRepository
	policy    Policy
	publisher PayoutPublisher
	log       zerolog.Logger
}

// NewService builds the ledger service. publisher may be nil.
func NewService(repo repository.AccountRepository, policy Policy, publisher PayoutPublisher) Service {
	return &service{
		repo:      repo,
		policy:    policy,
		publisher: publisher,
		log:       logger.Component("ledger"),
	}
}

var errNothingToDo = errors.New("nothing to do")

func (s *service) Policy() Policy {
	return s.policy
}

func (s *service) Touch(ctx context.Context, id int64, displayName string, now time.Time) (*models.Account, bool, error) {
	a, created, err := s.repo.GetOrCreate(ctx, id, displayName, now)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info().Int64("account_id", id).Msg("Account created")
		return a, true, nil
	}

	stale := !s.policy.SameDay(a.LastCounterResetAt, now) ||
		(displayName != "" && displayName != a.DisplayName) ||
		now.Sub(a.LastActiveAt) >= time.Minute
	if !stale {
		return a, false, nil
	}

	updated, err := s.repo.Update(ctx, id, func(a *models.Account) error {
		s.policy.EnsureDailyCounterCurrent(a, now)
		if displayName != "" {
			a.DisplayName = displayName
		}
		if now.After(a.LastActiveAt) {
			a.LastActiveAt = now
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

func (s *service) Account(ctx context.Context, id int64) (*models.Account, error) {
	a, err := s.repo.Find(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnknownAccount
	}
	return a, err
}

func (s *service) CreditAdView(ctx context.Context, id int64, now time.Time) (int64, error) {
	var balance int64
	_, err := s.repo.Update(ctx, id, func(a *models.Account) error {
		b, err := s.policy.CreditAdView(a, now)
		if err != nil {
			return err
		}
		balance = b
		if now.After(a.LastActiveAt) {
			a.LastActiveAt = now
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrUnknownAccount
	}
	if err != nil {
		return 0, err
	}

	s.log.Debug().Int64("account_id", id).Int64("balance", balance).Msg("Ad view credited")
	return balance, nil
}

func (s *service) AttributeReferral(ctx context.Context, newID, referrerID int64, now time.Time) (int64, bool, error) {
	if referrerID == 0 || referrerID == newID {
		return 0, false, nil
	}
	if _, err := s.repo.Find(ctx, referrerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	// The referred side is marked first so a repeated attribution stops here.
	_, err := s.repo.Update(ctx, newID, func(a *models.Account) error {
		if !s.policy.MarkReferred(a, referrerID) {
			return errNothingToDo
		}
		return nil
	})
	switch {
	case errors.Is(err, errNothingToDo):
		return 0, false, nil
	case errors.Is(err, repository.ErrNotFound):
		return 0, false, ErrUnknownAccount
	case err != nil:
		return 0, false, err
	}

	var balance int64
	_, err = s.repo.Update(ctx, referrerID, func(r *models.Account) error {
		balance = s.policy.CreditReferrer(r)
		return nil
	})
	if err != nil {
		s.unmarkReferred(newID, referrerID)
		return 0, false, err
	}

	s.log.Info().
		Int64("account_id", newID).
		Int64("referrer_id", referrerID).
		Int64("referrer_balance", balance).
		Msg("Referral attributed")
	return balance, true, nil
}

// unmarkReferred undoes the referred-side link after the referrer credit failed,
// so that a later /start can retry the attribution.
func (s *service) unmarkReferred(newID, referrerID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.repo.Update(ctx, newID, func(a *models.Account) error {
		if a.ReferredBy != referrerID {
			return errNothingToDo
		}
		a.ReferredBy = 0
		return nil
	})
	if err != nil && !errors.Is(err, errNothingToDo) {
		s.log.Error().Err(err).
			Int64("account_id", newID).
			Int64("referrer_id", referrerID).
			Msg("Referral left marked without referrer credit")
	}
}

func (s *service) AttemptWithdraw(ctx context.Context, id int64, now time.Time) (*models.Payout, error) {
	_, payout, err := s.repo.Withdraw(ctx, id, func(a *models.Account) (*models.Payout, error) {
		amount, err := s.policy.AttemptWithdraw(a, now)
		if err != nil {
			return nil, err
		}
		return &models.Payout{
			ID:            uuid.NewString(),
			AccountID:     a.ID,
			Amount:        amount,
			PayoutAddress: a.PayoutAddress,
			RequestedAt:   now,
		}, nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("account_id", id).
		Str("payout_id", payout.ID).
		Int64("amount", payout.Amount).
		Msg("Withdrawal recorded")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, payout); err != nil {
			s.log.Warn().Err(err).Str("payout_id", payout.ID).Msg("Failed to publish payout request")
		}
	}
	return payout, nil
}

func (s *service) SetPayoutAddress(ctx context.Context, id int64, address string) (*models.Account, error) {
	address, err := validation.PayoutAddress(address)
	if err != nil {
		return nil, apperrors.NewValidationError("payout_address", err.Error())
	}

	a, err := s.repo.Update(ctx, id, func(a *models.Account) error {
		a.PayoutAddress = address
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnknownAccount
	}
	return a, err
}

func (s *service) ConfirmMembership(ctx context.Context, id int64) error {
	_, err := s.repo.Update(ctx, id, func(a *models.Account) error {
		if a.HasConfirmedMembership {
			return errNothingToDo
		}
		a.HasConfirmedMembership = true
		return nil
	})
	switch {
	case err == nil, errors.Is(err, errNothingToDo):
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrUnknownAccount
	default:
		return err
	}
}

func (s *service) Payouts(ctx context.Context, id int64) ([]models.Payout, error) {
	return s.repo.ListPayouts(ctx, id)
}

func (s *service) Stats(ctx context.Context, now time.Time) (*models.Stats, error) {
	return s.repo.Stats(ctx, now)
}

func (s *service) BroadcastSettings(ctx context.Context) (*models.BroadcastSettings, error) {
	return s.repo.GetBroadcastSettings(ctx)
}

func (s *service) UpdateBroadcastSettings(ctx context.Context, fn func(s *models.BroadcastSettings), now time.Time) (*models.BroadcastSettings, error) {
	settings, err := s.repo.GetBroadcastSettings(ctx)
	if err != nil {
		return nil, err
	}
	fn(settings)
	settings.UpdatedAt = now
	if err := s.repo.SaveBroadcastSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *service) ForEachAccount(ctx context.Context, fn func(id int64) error) error {
	return s.repo.ForEachID(ctx, fn)
}
