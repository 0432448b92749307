package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/features/bot/models"
	"github.com/open-builders/adkamai/internal/features/bot/repository"
)

type pendingStore struct {
	client *redis.Client
}

func NewPendingStore(client *redis.Client) repository.PendingStore {
	return &pendingStore{client: client}
}

func pendingKey(userID int64) string {
	return fmt.Sprintf("pending:%d", userID)
}

func (s *pendingStore) Put(ctx context.Context, userID int64, p *models.PendingInput, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return apperrors.NewCacheError("encode pending input", err)
	}
	if err := s.client.Set(ctx, pendingKey(userID), data, ttl).Err(); err != nil {
		return apperrors.NewCacheError("put pending input", err)
	}
	return nil
}

func (s *pendingStore) Take(ctx context.Context, userID int64) (*models.PendingInput, error) {
	data, err := s.client.GetDel(ctx, pendingKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewCacheError("take pending input", err)
	}

	var p models.PendingInput
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, apperrors.NewCacheError("decode pending input", err)
	}
	return &p, nil
}
