// Package publish hands attendance records to an external append-only ordering
// service and returns the opaque sequence marker it assigns.
//
// Backends implement Publisher; Guarded wraps any backend with a timeout, a
// circuit breaker and metrics. Every backend error surfaces as publish_failed.
package publish

//go:generate mockgen -source=publish.go -destination=mocks/mock_publisher.go -package=mocks Publisher

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"tally/internal/attendance/models"
	dErrors "tally/pkg/domain-errors"
)

// Topic names a destination stream, queue or anchor namespace.
type Topic string

func (t Topic) String() string { return string(t) }

// SequenceMarker is the ordering service's receipt. Never parsed.
type SequenceMarker string

func (m SequenceMarker) String() string { return string(m) }

// Kind classifies what an envelope carries.
type Kind string

const (
	KindAttendance Kind = "attendance"
	KindTelemetry  Kind = "telemetry"
)

// Envelope is the transport-neutral unit handed to a Publisher.
type Envelope struct {
	Kind Kind
	// Key is "classID:sessionID"; brokers use it for partition affinity.
	Key     string
	ID      string
	Payload []byte
}

// Digest returns SHA-256 of the payload.
func (e Envelope) Digest() [32]byte {
	return sha256.Sum256(e.Payload)
}

// Publisher submits one envelope and returns its sequence marker.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, env Envelope) (SequenceMarker, error)
}

// AttendanceEnvelope wraps a record for publication.
func AttendanceEnvelope(rec models.Record) (Envelope, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Envelope{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode attendance record")
	}
	return Envelope{
		Kind:    KindAttendance,
		Key:     rec.Key().String(),
		ID:      rec.ID.String(),
		Payload: payload,
	}, nil
}

// SummaryEnvelope wraps a session summary for the telemetry topic.
func SummaryEnvelope(summary models.SessionSummary) (Envelope, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return Envelope{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode session summary")
	}
	key := models.SessionKey{ClassID: summary.ClassID, SessionID: summary.SessionID}
	return Envelope{
		Kind:    KindTelemetry,
		Key:     key.String(),
		ID:      uuid.NewString(),
		Payload: payload,
	}, nil
}

// Router resolves the topic for a record kind.
type Router struct {
	topics map[Kind]Topic
}

// NewRouter maps attendance and telemetry kinds to configured topic names.
func NewRouter(attendance, telemetry Topic) *Router {
	return &Router{topics: map[Kind]Topic{
		KindAttendance: attendance,
		KindTelemetry:  telemetry,
	}}
}

// TopicFor returns the topic for kind; unknown kinds fall back to attendance.
func (r *Router) TopicFor(kind Kind) Topic {
	if t, ok := r.topics[kind]; ok {
		return t
	}
	return r.topics[KindAttendance]
}

// Topics returns every distinct configured topic.
func (r *Router) Topics() []Topic {
	seen := make(map[Topic]struct{}, len(r.topics))
	out := make([]Topic, 0, len(r.topics))
	for _, k := range []Kind{KindAttendance, KindTelemetry} {
		t := r.topics[k]
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("publisher circuit open")

// Failed wraps a backend error as publish_failed unless it already is.
func Failed(err error, msg string) error {
	if err == nil {
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodePublishFailed) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodePublishFailed, msg)
}
