package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/features/account/repository"
	"github.com/open-builders/adkamai/internal/features/account/repository/storetest"
)

func newTestRepository(t *testing.T) (repository.AccountRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAccountRepository(client, 5*time.Second), mr
}

func TestAccountRepositoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.AccountRepository {
		repo, _ := newTestRepository(t)
		return repo
	})
}

func TestAccountKeysLayout(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()

	_, _, err := repo.GetOrCreate(ctx, 42, "Neha", time.Now())
	require.NoError(t, err)

	assert.True(t, mr.Exists("account:42"))
	ok, err := mr.SIsMember(keyAccountIDs, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	members, err := mr.ZMembers(keyActiveAccounts)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, members)
}

func TestStorageFailureIsDatabaseError(t *testing.T) {
	repo, mr := newTestRepository(t)
	mr.Close()

	_, err := repo.Find(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDatabaseError, appErr.Code)
}
