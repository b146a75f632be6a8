package lock

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/storefront-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilLockerGrantsLease(t *testing.T) {
	locker := NewLocker(nil)
	assert.Nil(t, locker)
	assert.False(t, locker.Enabled())

	token, ok, err := locker.TryLock(context.Background(), "ledger:lock:discount_decay", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
	assert.NoError(t, locker.Release(context.Background(), "ledger:lock:discount_decay", token))
}

func TestTryLockValidatesArguments(t *testing.T) {
	var locker *Locker

	_, _, err := locker.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, _, err = locker.TryLock(context.Background(), "key", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestNewRedisClientDisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, NewRedisClient(config.Config{}, zap.NewNop()))
}
