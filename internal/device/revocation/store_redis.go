package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const revokedTokenKeyPrefix = "tally:trl:jti:"

// RedisStore shares revocations between server instances.
type RedisStore struct {
	client  redis.UniversalClient
	latency prometheus.Observer
}

type RedisOption func(*RedisStore)

// WithLatencyObserver records IsRevoked latency in milliseconds.
func WithLatencyObserver(o prometheus.Observer) RedisOption {
	return func(s *RedisStore) {
		s.latency = o
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Revoke marks tokenID revoked with SET EX; the key expires with the token.
func (s *RedisStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	return s.client.Set(ctx, revokedTokenKeyPrefix+tokenID, "1", ttl).Err()
}

func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if s.latency != nil {
		start := time.Now()
		defer func() {
			s.latency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}()
	}
	if tokenID == "" {
		return false, nil
	}
	err := s.client.Get(ctx, revokedTokenKeyPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
