package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/account/repository"
)

const (
	keyAccountIDs        = "accounts:ids"
	keyActiveAccounts    = "accounts:active"
	keyBroadcastSettings = "settings:broadcast"
	scanBatch            = 500
)

func accountKey(id int64) string {
	return fmt.Sprintf("account:%d", id)
}

func payoutKey(id string) string {
	return fmt.Sprintf("payout:%s", id)
}

func accountPayoutsKey(id int64) string {
	return fmt.Sprintf("payouts:account:%d", id)
}

type accountRepository struct {
	client  *redis.Client
	timeout time.Duration
}

// NewAccountRepository stores each account as a JSON document under account:<id>.
// Read-modify-write cycles use WATCH/MULTI on that key.
func NewAccountRepository(client *redis.Client, timeout time.Duration) repository.AccountRepository {
	return &accountRepository{client: client, timeout: timeout}
}

func (r *accountRepository) GetOrCreate(ctx context.Context, id int64, displayName string, now time.Time) (*models.Account, bool, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := accountKey(id)
	for attempt := 0; attempt < repository.MaxUpdateAttempts; attempt++ {
		var (
			result  *models.Account
			created bool
		)
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			existing, err := r.load(ctx, tx, id)
			if err == nil {
				result = existing
				return nil
			}
			if !stderrors.Is(err, repository.ErrNotFound) {
				return err
			}

			a := models.NewAccount(id, displayName, now)
			a.Version = 1
			data, err := json.Marshal(a)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				pipe.SAdd(ctx, keyAccountIDs, id)
				pipe.ZAdd(ctx, keyActiveAccounts, redis.Z{Score: float64(now.Unix()), Member: id})
				return nil
			})
			if err != nil {
				return err
			}
			result, created = a, true
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, false, apperrors.NewDatabaseError("get or create account", err)
		}
		return result, created, nil
	}
	return nil, false, apperrors.NewDatabaseError("get or create account", repository.ErrConflict)
}

func (r *accountRepository) Find(ctx context.Context, id int64) (*models.Account, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	a, err := r.load(ctx, r.client, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, apperrors.NewDatabaseError("find account", err)
	}
	return a, nil
}

func (r *accountRepository) Save(ctx context.Context, a *models.Account) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	stored := a.Clone()
	stored.Version++
	data, err := json.Marshal(stored)
	if err != nil {
		return apperrors.NewDatabaseError("encode account", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, accountKey(a.ID), data, 0)
		pipe.SAdd(ctx, keyAccountIDs, a.ID)
		pipe.ZAdd(ctx, keyActiveAccounts, redis.Z{Score: float64(a.LastActiveAt.Unix()), Member: a.ID})
		return nil
	})
	if err != nil {
		return apperrors.NewDatabaseError("save account", err)
	}
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
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := accountKey(id)
	for attempt := 0; attempt < repository.MaxUpdateAttempts; attempt++ {
		var (
			updated *models.Account
			payout  *models.Payout
			fnErr   error
		)
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := r.load(ctx, tx, id)
			if err != nil {
				return err
			}

			working := current.Clone()
			p, err := fn(working)
			if err != nil {
				fnErr = err
				return nil
			}
			working.ID = id
			working.Version = current.Version + 1

			data, err := json.Marshal(working)
			if err != nil {
				return err
			}
			var payoutData []byte
			if p != nil {
				if payoutData, err = json.Marshal(p); err != nil {
					return err
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				pipe.ZAdd(ctx, keyActiveAccounts, redis.Z{Score: float64(working.LastActiveAt.Unix()), Member: id})
				if p != nil {
					pipe.Set(ctx, payoutKey(p.ID), payoutData, 0)
					pipe.LPush(ctx, accountPayoutsKey(id), p.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
			updated, payout = working, p
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return nil, nil, err
			}
			return nil, nil, apperrors.NewDatabaseError("update account", err)
		}
		if fnErr != nil {
			return nil, nil, fnErr
		}
		return updated, payout, nil
	}
	return nil, nil, apperrors.NewDatabaseError("update account", repository.ErrConflict)
}

func (r *accountRepository) BulkResetDailyCounters(ctx context.Context, now time.Time) (int64, error) {
	var reset int64
	err := r.ForEachID(ctx, func(id int64) error {
		_, err := r.Update(ctx, id, func(a *models.Account) error {
			a.AdsWatchedToday = 0
			a.LastCounterResetAt = now
			return nil
		})
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		reset++
		return nil
	})
	return reset, err
}

func (r *accountRepository) ForEachID(ctx context.Context, fn func(id int64) error) error {
	var cursor uint64
	for {
		scanCtx, cancel := repository.WithTimeout(ctx, r.timeout)
		members, next, err := r.client.SScan(scanCtx, keyAccountIDs, cursor, "", scanBatch).Result()
		cancel()
		if err != nil {
			return apperrors.NewDatabaseError("scan account ids", err)
		}

		for _, m := range members {
			id, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (r *accountRepository) Stats(ctx context.Context, now time.Time) (*models.Stats, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	since := func(window time.Duration) string {
		return strconv.FormatInt(now.Add(-window).Unix(), 10)
	}

	pipe := r.client.Pipeline()
	total := pipe.SCard(ctx, keyAccountIDs)
	day := pipe.ZCount(ctx, keyActiveAccounts, since(models.ActiveDayWindow), "+inf")
	week := pipe.ZCount(ctx, keyActiveAccounts, since(models.ActiveWeekWindow), "+inf")
	month := pipe.ZCount(ctx, keyActiveAccounts, since(models.ActiveMonthWindow), "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("account stats", err)
	}

	return &models.Stats{
		TotalUsers:  total.Val(),
		ActiveDay:   day.Val(),
		ActiveWeek:  week.Val(),
		ActiveMonth: month.Val(),
	}, nil
}

func (r *accountRepository) ListPayouts(ctx context.Context, accountID int64) ([]models.Payout, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	ids, err := r.client.LRange(ctx, accountPayoutsKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, apperrors.NewDatabaseError("list payouts", err)
	}
	if len(ids) == 0 {
		return []models.Payout{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = payoutKey(id)
	}
	raw, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.NewDatabaseError("list payouts", err)
	}

	payouts := make([]models.Payout, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p models.Payout
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			continue
		}
		payouts = append(payouts, p)
	}
	return payouts, nil
}

func (r *accountRepository) GetBroadcastSettings(ctx context.Context) (*models.BroadcastSettings, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, keyBroadcastSettings).Bytes()
	if err == redis.Nil {
		return models.DefaultBroadcastSettings(), nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get broadcast settings", err)
	}

	var s models.BroadcastSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.NewDatabaseError("decode broadcast settings", err)
	}
	return &s, nil
}

func (r *accountRepository) SaveBroadcastSettings(ctx context.Context, s *models.BroadcastSettings) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := json.Marshal(s)
	if err != nil {
		return apperrors.NewDatabaseError("encode broadcast settings", err)
	}
	if err := r.client.Set(ctx, keyBroadcastSettings, data, 0).Err(); err != nil {
		return apperrors.NewDatabaseError("save broadcast settings", err)
	}
	return nil
}

func (r *accountRepository) Ping(ctx context.Context) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return apperrors.NewDatabaseError("ping", err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *accountRepository) load(ctx context.Context, c getter, id int64) (*models.Account, error) {
	data, err := c.Get(ctx, accountKey(id)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var a models.Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode account %d: %w", id, err)
	}
	return &a, nil
}
