package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tally/internal/attendance/models"
	"tally/pkg/platform/sentinel"
)

const lockKeyPrefix = "tally:lock:"

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock (SET NX PX plus token-checked
// release). The lease bounds how long a crashed holder can block a session.
type RedisLocker struct {
	client     redis.UniversalClient
	lease      time.Duration
	retryEvery time.Duration
	maxRetry   time.Duration
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLease sets the lock expiry.
func WithLease(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.lease = d
		}
	}
}

// WithRetryBackoff sets the initial and maximum wait between acquisition attempts.
func WithRetryBackoff(initial, max time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if initial > 0 {
			l.retryEvery = initial
		}
		if max >= l.retryEvery {
			l.maxRetry = max
		}
	}
}

func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:     client,
		lease:      2 * time.Minute,
		retryEvery: 25 * time.Millisecond,
		maxRetry:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key models.SessionKey) (func(), error) {
	k := lockKeyPrefix + key.String()
	token := uuid.NewString()
	wait := l.retryEvery

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.lease).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, unavailable("lock", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock session %s: %w: %w", key, sentinel.ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
		wait = min(wait*2, l.maxRetry)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{k}, token).Err()
		})
	}, nil
}
