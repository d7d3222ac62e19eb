package publish

import (
	"context"
	"strconv"
	"sync"
)

// Published is one envelope accepted by the in-memory publisher.
type Published struct {
	Topic    Topic
	Envelope Envelope
	Marker   SequenceMarker
}

// InMemoryPublisher assigns strictly increasing markers from a counter. Used
// in development and tests.
type InMemoryPublisher struct {
	mu   sync.Mutex
	seq  uint64
	log  []Published
	fail func(Topic, Envelope) error
}

// MemoryOption configures an InMemoryPublisher.
type MemoryOption func(*InMemoryPublisher)

// WithFailure makes Publish return fail's non-nil result without assigning a marker.
func WithFailure(fail func(Topic, Envelope) error) MemoryOption {
	return func(p *InMemoryPublisher) {
		p.fail = fail
	}
}

func NewInMemoryPublisher(opts ...MemoryOption) *InMemoryPublisher {
	p := &InMemoryPublisher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *InMemoryPublisher) Publish(ctx context.Context, topic Topic, env Envelope) (SequenceMarker, error) {
	if err := ctx.Err(); err != nil {
		return "", Failed(err, "publish cancelled")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		if err := p.fail(topic, env); err != nil {
			return "", Failed(err, "publish rejected")
		}
	}
	p.seq++
	marker := SequenceMarker(strconv.FormatUint(p.seq, 10))
	p.log = append(p.log, Published{Topic: topic, Envelope: env, Marker: marker})
	return marker, nil
}

// Published returns a copy of everything accepted so far, in order.
func (p *InMemoryPublisher) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.log))
	copy(out, p.log)
	return out
}
