package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestRedisLocker_Lock(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires and releases", func(t *testing.T) {
		mr, client := newTestRedis(t)
		locker := NewRedisLocker(client, "lock:", time.Minute, 5*time.Millisecond, 50*time.Millisecond)

		release, err := locker.Lock(ctx, "saga:a")
		require.NoError(t, err)
		assert.True(t, mr.Exists("lock:saga:a"))
		assert.Equal(t, time.Minute, mr.TTL("lock:saga:a"))

		require.NoError(t, release(ctx))
		assert.False(t, mr.Exists("lock:saga:a"))
	})

	t.Run("second holder waits and gives up", func(t *testing.T) {
		_, client := newTestRedis(t)
		locker := NewRedisLocker(client, "lock:", time.Minute, 5*time.Millisecond, 30*time.Millisecond)

		release, err := locker.Lock(ctx, "saga:a")
		require.NoError(t, err)
		defer release(ctx) //nolint:errcheck

		_, err = locker.Lock(ctx, "saga:a")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLockNotAcquired))
	})

	t.Run("second holder gets the lock once released", func(t *testing.T) {
		_, client := newTestRedis(t)
		locker := NewRedisLocker(client, "lock:", time.Minute, 5*time.Millisecond, time.Second)

		release, err := locker.Lock(ctx, "saga:a")
		require.NoError(t, err)

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = release(ctx)
		}()

		second, err := locker.Lock(ctx, "saga:a")
		require.NoError(t, err)
		require.NoError(t, second(ctx))
	})

	t.Run("release does not delete a lock taken over by someone else", func(t *testing.T) {
		mr, client := newTestRedis(t)
		locker := NewRedisLocker(client, "lock:", time.Minute, 5*time.Millisecond, 50*time.Millisecond)

		release, err := locker.Lock(ctx, "saga:a")
		require.NoError(t, err)

		require.NoError(t, mr.Set("lock:saga:a", "another-token"))

		require.NoError(t, release(ctx))
		got, err := mr.Get("lock:saga:a")
		require.NoError(t, err)
		assert.Equal(t, "another-token", got)
	})

	t.Run("redis unavailable", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()
		locker := NewRedisLocker(client, "lock:", time.Minute, 5*time.Millisecond, 50*time.Millisecond)

		_, err = locker.Lock(ctx, "saga:a")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to acquire redis lock")
	})
}
