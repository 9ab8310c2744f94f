package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redismock/v9"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerTryLockAndRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewLocker(client)
	ctx := context.Background()

	mock.CustomMatch(func(expected, actual []interface{}) error { return nil }).
		ExpectSetNX("boxoffice:outbox:relay", "", time.Minute).SetVal(true)

	token, ok, err := locker.TryLock(ctx, "boxoffice:outbox:relay", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	mock.ExpectEvalSha(locker.script.Hash(), []string{"boxoffice:outbox:relay"}, token).SetVal(int64(1))
	require.NoError(t, locker.Release(ctx, "boxoffice:outbox:relay", token))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerRejectsBadInput(t *testing.T) {
	client, _ := redismock.NewClientMock()
	locker := NewLocker(client)

	_, _, err := locker.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrLockKeyEmpty)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrLockTTL)

	var nilLocker *Locker
	_, _, err = nilLocker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, nilLocker.Release(context.Background(), "k", "t"))
}

func TestTokenBucketDenied(t *testing.T) {
	client, mock := redismock.NewClientMock()
	bucket := NewTokenBucket(client)

	rate, burst := 2.0, 4
	ttl := bucketTTL(rate, burst).Milliseconds()
	mock.ExpectEvalSha(bucket.script.Hash(), []string{"bucket"}, rate, burst, ttl).
		SetVal([]interface{}{int64(0), "0.5", int64(1700000000000)})

	res, err := bucket.Allow(context.Background(), "bucket", rate, burst)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 4, res.Limit)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucketAllowed(t *testing.T) {
	client, mock := redismock.NewClientMock()
	bucket := NewTokenBucket(client)

	rate, burst := 10.0, 20
	ttl := bucketTTL(rate, burst).Milliseconds()
	mock.ExpectEvalSha(bucket.script.Hash(), []string{"bucket"}, rate, burst, ttl).
		SetVal([]interface{}{int64(1), "19", int64(1700000000000)})

	res, err := bucket.Allow(context.Background(), "bucket", rate, burst)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 19, res.Remaining)
	assert.Zero(t, res.RetryAfter)
}

func TestCheckoutLimiterDisabledAllowsEverything(t *testing.T) {
	limiter := NewCheckoutLimiter(config.Config{}, nil)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowEvent(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckoutLimiterKeysByEvent(t *testing.T) {
	client, mock := redismock.NewClientMock()
	bucket := NewTokenBucket(client)
	cfg := config.Config{Checkout: config.CheckoutConfig{RatePerSecond: 5, Burst: 10}}
	limiter := NewCheckoutLimiter(cfg, bucket)

	ttl := bucketTTL(5, 10).Milliseconds()
	mock.ExpectEvalSha(bucket.script.Hash(), []string{"boxoffice:checkout:event:77"}, 5.0, 10, ttl).
		SetVal([]interface{}{int64(1), "9", int64(1)})

	res, err := limiter.AllowEvent(context.Background(), snowflake.ID(77))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
