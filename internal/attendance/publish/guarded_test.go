package publish_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tally/internal/attendance/publish"
	"tally/internal/attendance/publish/mocks"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/circuit"
)

type GuardedSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	next    *mocks.MockPublisher
	metrics *publish.Metrics
	now     time.Time
	guarded *publish.Guarded
	env     publish.Envelope
}

func TestGuardedSuite(t *testing.T) {
	suite.Run(t, new(GuardedSuite))
}

func (s *GuardedSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.next = mocks.NewMockPublisher(s.ctrl)
	s.metrics = publish.NewMetrics(prometheus.NewRegistry())
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.guarded = publish.NewGuarded(s.next, "test",
		publish.WithTimeout(50*time.Millisecond),
		publish.WithBreaker(breaker),
		publish.WithMetrics(s.metrics),
		publish.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.env = publish.Envelope{Kind: publish.KindAttendance, Key: "CS101:s1", ID: "r1", Payload: []byte(`{}`)}
}

func (s *GuardedSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GuardedSuite) TestSuccessPassesMarkerThrough() {
	s.next.EXPECT().Publish(gomock.Any(), publish.Topic("records"), s.env).Return(publish.SequenceMarker("42"), nil)

	marker, err := s.guarded.Publish(context.Background(), "records", s.env)
	s.Require().NoError(err)
	s.Equal(publish.SequenceMarker("42"), marker)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Published.WithLabelValues("test", "records")))
}

func (s *GuardedSuite) TestBackendErrorBecomesPublishFailed() {
	s.next.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(publish.SequenceMarker(""), errors.New("connection refused"))

	_, err := s.guarded.Publish(context.Background(), "records", s.env)
	s.True(dErrors.Is(err, dErrors.CodePublishFailed))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Failures.WithLabelValues("test", "records")))
}

func (s *GuardedSuite) TestTimeoutBecomesPublishFailed() {
	s.next.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ publish.Topic, _ publish.Envelope) (publish.SequenceMarker, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	_, err := s.guarded.Publish(context.Background(), "records", s.env)
	s.True(dErrors.Is(err, dErrors.CodePublishFailed))
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *GuardedSuite) TestCircuitOpensAndRecovers() {
	s.next.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(publish.SequenceMarker(""), errors.New("down")).Times(2)

	for range 2 {
		_, err := s.guarded.Publish(context.Background(), "records", s.env)
		s.Error(err)
	}

	s.Run("open circuit rejects without calling backend", func() {
		_, err := s.guarded.Publish(context.Background(), "records", s.env)
		s.ErrorIs(err, publish.ErrCircuitOpen)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CircuitState.WithLabelValues("test")))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CircuitRejected.WithLabelValues("test")))
	})

	s.Run("probe after cooldown closes circuit", func() {
		s.now = s.now.Add(time.Minute)
		s.next.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(publish.SequenceMarker("7"), nil)

		marker, err := s.guarded.Publish(context.Background(), "records", s.env)
		s.Require().NoError(err)
		s.Equal(publish.SequenceMarker("7"), marker)
		s.Equal(0.0, testutil.ToFloat64(s.metrics.CircuitState.WithLabelValues("test")))
	})
}
