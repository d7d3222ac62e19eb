package publish

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const streamKeyPrefix = "tally:stream:"

// RedisStreamPublisher appends envelopes to a Redis stream per topic. Stream
// entry IDs are strictly increasing, so the entry ID is the marker.
type RedisStreamPublisher struct {
	client redis.UniversalClient
	maxLen int64
}

// RedisStreamOption configures a RedisStreamPublisher.
type RedisStreamOption func(*RedisStreamPublisher)

// WithMaxLen trims streams approximately to n entries. Zero disables trimming.
func WithMaxLen(n int64) RedisStreamOption {
	return func(p *RedisStreamPublisher) {
		p.maxLen = n
	}
}

func NewRedisStreamPublisher(client redis.UniversalClient, opts ...RedisStreamOption) *RedisStreamPublisher {
	p := &RedisStreamPublisher{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// StreamKey returns the Redis key backing topic.
func StreamKey(topic Topic) string {
	return streamKeyPrefix + topic.String()
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, topic Topic, env Envelope) (SequenceMarker, error) {
	args := &redis.XAddArgs{
		Stream: StreamKey(topic),
		Values: map[string]any{
			"kind":      string(env.Kind),
			"key":       env.Key,
			"record_id": env.ID,
			"payload":   string(env.Payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	entryID, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", Failed(err, "redis stream append failed")
	}
	return SequenceMarker(entryID), nil
}
