package publish

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tally/pkg/platform/circuit"
)

// Guarded decorates a backend with a per-call timeout, a circuit breaker,
// metrics and a trace span. A timeout is reported as publish_failed like any
// other backend error.
type Guarded struct {
	next    Publisher
	backend string
	timeout time.Duration
	breaker *circuit.Breaker
	metrics *Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// GuardOption configures Guarded.
type GuardOption func(*Guarded)

func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guarded) {
		g.breaker = b
	}
}

func WithMetrics(m *Metrics) GuardOption {
	return func(g *Guarded) {
		g.metrics = m
	}
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		g.logger = logger
	}
}

func WithTracer(t trace.Tracer) GuardOption {
	return func(g *Guarded) {
		g.tracer = t
	}
}

// NewGuarded wraps next. backend labels logs and metrics.
func NewGuarded(next Publisher, backend string, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:    next,
		backend: backend,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
		tracer:  otel.Tracer("tally/publish"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = circuit.New(backend)
	}
	return g
}

func (g *Guarded) Publish(ctx context.Context, topic Topic, env Envelope) (SequenceMarker, error) {
	if !g.breaker.Allow() {
		g.metrics.rejected(g.backend)
		return "", Failed(ErrCircuitOpen, "ordering service unavailable")
	}

	ctx, span := g.tracer.Start(ctx, "publish.Publish", trace.WithAttributes(
		attribute.String("publish.backend", g.backend),
		attribute.String("publish.topic", topic.String()),
		attribute.String("publish.kind", string(env.Kind)),
		attribute.String("publish.record_id", env.ID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	marker, err := g.next.Publish(ctx, topic, env)
	g.metrics.observe(g.backend, topic, time.Since(start), err)

	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.metrics.setCircuit(g.backend, true)
			g.logger.WarnContext(ctx, "publisher circuit opened",
				"backend", g.backend,
				"error", err,
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return "", Failed(err, "publish to "+topic.String()+" failed")
	}

	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.setCircuit(g.backend, false)
		g.logger.InfoContext(ctx, "publisher circuit closed", "backend", g.backend)
	}
	span.SetAttributes(attribute.String("publish.sequence_marker", marker.String()))
	return marker, nil
}
