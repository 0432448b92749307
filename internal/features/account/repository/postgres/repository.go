package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/account/repository"
)

const (
	accountColumns = `id, display_name, first_seen_at, balance, referral_count, referred_by,
		payout_address, ads_watched_today, last_ad_at, last_counter_reset_at,
		has_confirmed_membership, last_active_at, version`

	broadcastSettingsKey = "broadcast"
	idPageSize           = 500
)

type accountRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewAccountRepository returns a store backed by the accounts, payouts and
// bot_settings tables. Updates lock the account row for their transaction.
func NewAccountRepository(db *sql.DB, timeout time.Duration) repository.AccountRepository {
	return &accountRepository{db: db, timeout: timeout}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a          models.Account
		referredBy sql.NullInt64
		lastAdAt   sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.DisplayName, &a.FirstSeenAt, &a.Balance, &a.ReferralCount, &referredBy,
		&a.PayoutAddress, &a.AdsWatchedToday, &lastAdAt, &a.LastCounterResetAt,
		&a.HasConfirmedMembership, &a.LastActiveAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	if referredBy.Valid {
		a.ReferredBy = referredBy.Int64
	}
	if lastAdAt.Valid {
		t := lastAdAt.Time
		a.LastAdAt = &t
	}
	return &a, nil
}

func nullableReferrer(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *accountRepository) GetOrCreate(ctx context.Context, id int64, displayName string, now time.Time) (*models.Account, bool, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, first_seen_at, last_counter_reset_at, last_active_at, version)
		VALUES ($1, $2, $3, $3, $3, 1)
		ON CONFLICT (id) DO NOTHING
	`, id, displayName, now)
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("create account", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("create account", err)
	}

	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("get account", err)
	}
	return a, affected == 1, nil
}

func (r *accountRepository) Find(ctx context.Context, id int64) (*models.Account, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("find account", err)
	}
	return a, nil
}

func (r *accountRepository) Save(ctx context.Context, a *models.Account) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	var version int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			balance = EXCLUDED.balance,
			referral_count = EXCLUDED.referral_count,
			referred_by = EXCLUDED.referred_by,
			payout_address = EXCLUDED.payout_address,
			ads_watched_today = EXCLUDED.ads_watched_today,
			last_ad_at = EXCLUDED.last_ad_at,
			last_counter_reset_at = EXCLUDED.last_counter_reset_at,
			has_confirmed_membership = EXCLUDED.has_confirmed_membership,
			last_active_at = EXCLUDED.last_active_at,
			version = accounts.version + 1
		RETURNING version
	`,
		a.ID, a.DisplayName, a.FirstSeenAt, a.Balance, a.ReferralCount, nullableReferrer(a.ReferredBy),
		a.PayoutAddress, a.AdsWatchedToday, nullableTime(a.LastAdAt), a.LastCounterResetAt,
		a.HasConfirmedMembership, a.LastActiveAt,
	).Scan(&version)
	if err != nil {
		return apperrors.NewDatabaseError("save account", err)
	}
	a.Version = version
	return nil
}

func (r *accountRepository) Update(ctx context.Context, id int64, fn repository.UpdateFunc) (*models.Account, error) {
	a, _, err := r.Withdraw(ctx, id, func(a *models.Account) (*models.Payout, error) {
		return nil, fn(a)
	})
	return a, err
}

func (r *accountRepository) Withdraw(ctx context.Context, id int64, fn repository.WithdrawFunc) (*models.Account, *models.Payout, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("begin transaction", err)
	}
	defer tx.Rollback()

	current, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("lock account", err)
	}

	working := current.Clone()
	payout, err := fn(working)
	if err != nil {
		return nil, nil, err
	}
	working.ID = id
	working.Version = current.Version + 1

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET
			display_name = $2,
			balance = $3,
			referral_count = $4,
			referred_by = $5,
			payout_address = $6,
			ads_watched_today = $7,
			last_ad_at = $8,
			last_counter_reset_at = $9,
			has_confirmed_membership = $10,
			last_active_at = $11,
			version = $12
		WHERE id = $1
	`,
		id, working.DisplayName, working.Balance, working.ReferralCount, nullableReferrer(working.ReferredBy),
		working.PayoutAddress, working.AdsWatchedToday, nullableTime(working.LastAdAt), working.LastCounterResetAt,
		working.HasConfirmedMembership, working.LastActiveAt, working.Version,
	)
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("update account", err)
	}

	if payout != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payouts (id, account_id, amount, payout_address, requested_at)
			VALUES ($1, $2, $3, $4, $5)
		`, payout.ID, payout.AccountID, payout.Amount, payout.PayoutAddress, payout.RequestedAt)
		if err != nil {
			return nil, nil, apperrors.NewDatabaseError("record payout", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apperrors.NewDatabaseError("commit transaction", err)
	}
	return working, payout, nil
}

func (r *accountRepository) BulkResetDailyCounters(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET ads_watched_today = 0, last_counter_reset_at = $1, version = version + 1
	`, now)
	if err != nil {
		return 0, apperrors.NewDatabaseError("reset daily counters", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewDatabaseError("reset daily counters", err)
	}
	return n, nil
}

func (r *accountRepository) ForEachID(ctx context.Context, fn func(id int64) error) error {
	var after int64
	for {
		ids, err := r.idPage(ctx, after)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := fn(id); err != nil {
				return err
			}
		}
		if len(ids) < idPageSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

func (r *accountRepository) idPage(ctx context.Context, after int64) ([]int64, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM accounts WHERE id > $1 ORDER BY id LIMIT $2`, after, idPageSize)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list account ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewDatabaseError("list account ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list account ids", err)
	}
	return ids, nil
}

func (r *accountRepository) Stats(ctx context.Context, now time.Time) (*models.Stats, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	var s models.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE last_active_at >= $1),
			COUNT(*) FILTER (WHERE last_active_at >= $2),
			COUNT(*) FILTER (WHERE last_active_at >= $3)
		FROM accounts
	`,
		now.Add(-models.ActiveDayWindow),
		now.Add(-models.ActiveWeekWindow),
		now.Add(-models.ActiveMonthWindow),
	).Scan(&s.TotalUsers, &s.ActiveDay, &s.ActiveWeek, &s.ActiveMonth)
	if err != nil {
		return nil, apperrors.NewDatabaseError("account stats", err)
	}
	return &s, nil
}

func (r *accountRepository) ListPayouts(ctx context.Context, accountID int64) ([]models.Payout, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, amount, payout_address, requested_at
		FROM payouts
		WHERE account_id = $1
		ORDER BY requested_at DESC
	`, accountID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list payouts", err)
	}
	defer rows.Close()

	payouts := []models.Payout{}
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Amount, &p.PayoutAddress, &p.RequestedAt); err != nil {
			return nil, apperrors.NewDatabaseError("list payouts", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list payouts", err)
	}
	return payouts, nil
}

func (r *accountRepository) GetBroadcastSettings(ctx context.Context) (*models.BroadcastSettings, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM bot_settings WHERE key = $1`, broadcastSettingsKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.DefaultBroadcastSettings(), nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get broadcast settings", err)
	}

	var s models.BroadcastSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, apperrors.NewDatabaseError("decode broadcast settings", err)
	}
	return &s, nil
}

func (r *accountRepository) SaveBroadcastSettings(ctx context.Context, s *models.BroadcastSettings) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := json.Marshal(s)
	if err != nil {
		return apperrors.NewDatabaseError("encode broadcast settings", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bot_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, broadcastSettingsKey, raw)
	if err != nil {
		return apperrors.NewDatabaseError("save broadcast settings", err)
	}
	return nil
}

func (r *accountRepository) Ping(ctx context.Context) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.PingContext(ctx); err != nil {
		return apperrors.NewDatabaseError("ping", err)
	}
	return nil
}

