package infrastructure

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ saga.Locker = (*RedisLocker)(nil)

var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes units of work across processes with SET NX PX.
// The lock expires after ttl so a crashed holder cannot block a saga forever.
type RedisLocker struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	maxWait       time.Duration
}

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl, retryInterval, maxWait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:        client,
		prefix:        prefix,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxWait:       maxWait,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (saga.ReleaseFunc, error) {
	redisKey := l.prefix + key
	token := models.GenerateUUID().String()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return struct{}{}, backoff.Permanent(errors.Wrap(err, "failed to acquire redis lock"))
		}
		if !ok {
			return struct{}{}, ErrLockNotAcquired
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(l.retryInterval)),
		backoff.WithMaxElapsedTime(l.maxWait),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return nil, errors.Wrapf(err, "lock %s", redisKey)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return errors.Wrapf(err, "failed to release lock %s", redisKey)
		}
		return nil
	}, nil
}
