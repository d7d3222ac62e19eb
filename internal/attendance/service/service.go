// Package service records live presence taps and reconciles sessions at close.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"tally/internal/attendance/ledger"
	"tally/internal/attendance/metrics"
	"tally/internal/attendance/models"
	"tally/internal/attendance/publish"
	"tally/internal/pseudonym"
	"tally/internal/roster"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/sentinel"
)

// DefaultPublishConcurrency bounds concurrent absentee publications per close.
const DefaultPublishConcurrency = 8

// commitTimeout bounds ledger writes that must finish after a publish even if
// the caller has gone away.
const commitTimeout = 5 * time.Second

type Service struct {
	ledger      ledger.Ledger
	locker      ledger.Locker
	publisher   publish.Publisher
	router      *publish.Router
	roster      roster.Store
	deriver     *pseudonym.Deriver
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	concurrency int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithPublishConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(
	l ledger.Ledger,
	locker ledger.Locker,
	publisher publish.Publisher,
	router *publish.Router,
	rosters roster.Store,
	deriver *pseudonym.Deriver,
	opts ...Option,
) (*Service, error) {
	switch {
	case l == nil:
		return nil, errors.New("ledger is required")
	case locker == nil:
		return nil, errors.New("locker is required")
	case publisher == nil:
		return nil, errors.New("publisher is required")
	case router == nil:
		return nil, errors.New("topic router is required")
	case rosters == nil:
		return nil, errors.New("roster store is required")
	case deriver == nil:
		return nil, errors.New("pseudonym deriver is required")
	}

	svc := &Service{
		ledger:      l,
		locker:      locker,
		publisher:   publisher,
		router:      router,
		roster:      rosters,
		deriver:     deriver,
		logger:      slog.Default(),
		tracer:      otel.Tracer("tally/attendance"),
		now:         time.Now,
		concurrency: DefaultPublishConcurrency,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Salt returns the session salt devices use to pseudonymize taps locally.
// The class must exist.
func (s *Service) Salt(ctx context.Context, classID id.ClassID, sessionStartISO string) (pseudonym.Salt, error) {
	if classID == "" {
		return pseudonym.Salt{}, dErrors.New(dErrors.CodeValidation, "class_id is required")
	}
	if _, err := time.Parse(time.RFC3339Nano, sessionStartISO); err != nil {
		return pseudonym.Salt{}, dErrors.New(dErrors.CodeValidation, "session_start must be an RFC 3339 timestamp")
	}
	if _, err := s.roster.Roster(ctx, classID); err != nil {
		return pseudonym.Salt{}, translateStoreErr(err, "class not found", "failed to load roster")
	}
	return s.deriver.Salt(string(classID), sessionStartISO), nil
}

// lookupSession translates store errors for the session referenced by key.
func (s *Service) lookupSession(ctx context.Context, key models.SessionKey) (roster.ClassSession, time.Time, error) {
	sess, err := s.roster.Session(ctx, key.ClassID, key.SessionID)
	if err != nil {
		return roster.ClassSession{}, time.Time{}, translateStoreErr(err, "session not found", "failed to look up session")
	}
	start, err := sess.Start()
	if err != nil {
		return roster.ClassSession{}, time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "session has an invalid start time")
	}
	return sess, start, nil
}

func translateStoreErr(err error, notFound, other string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, other)
	case errors.Is(err, sentinel.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, other)
	default:
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, other)
	}
}
