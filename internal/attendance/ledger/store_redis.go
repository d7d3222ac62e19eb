package ledger

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"tally/internal/attendance/models"
	"tally/internal/pseudonym"
)

const ledgerKeyPrefix = "tally:ledger:"

// forgetScript deletes a field only while it still holds the expected status.
var forgetScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// RedisLedger stores one hash per session, field = pseudonym, value = status.
type RedisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// RedisLedgerOption configures a RedisLedger.
type RedisLedgerOption func(*RedisLedger)

// WithTTL expires a session hash ttl after its last write. Zero keeps entries forever.
func WithTTL(ttl time.Duration) RedisLedgerOption {
	return func(l *RedisLedger) {
		l.ttl = ttl
	}
}

func NewRedisLedger(client redis.UniversalClient, opts ...RedisLedgerOption) *RedisLedger {
	l := &RedisLedger{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func ledgerKey(key models.SessionKey) string {
	return ledgerKeyPrefix + key.String()
}

func (l *RedisLedger) RecordPresence(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	if err := validateEntry(p, status); err != nil {
		return false, err
	}
	k := ledgerKey(key)

	var set *redis.BoolCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.HSetNX(ctx, k, p.String(), status.String())
		if l.ttl > 0 {
			pipe.Expire(ctx, k, l.ttl)
		}
		return nil
	})
	if err != nil {
		return false, unavailable("record presence", err)
	}
	return !set.Val(), nil
}

func (l *RedisLedger) Snapshot(ctx context.Context, key models.SessionKey) (models.Membership, error) {
	fields, err := l.client.HGetAll(ctx, ledgerKey(key)).Result()
	if err != nil {
		return nil, unavailable("snapshot", err)
	}
	out := make(models.Membership, len(fields))
	for p, s := range fields {
		status, err := models.ParseStatus(s)
		if err != nil {
			return nil, unavailable("snapshot", err)
		}
		out[pseudonym.Pseudonym(p)] = status
	}
	return out, nil
}

func (l *RedisLedger) Forget(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	n, err := forgetScript.Run(ctx, l.client, []string{ledgerKey(key)}, p.String(), status.String()).Int()
	if err != nil {
		return false, unavailable("forget", err)
	}
	return n == 1, nil
}
