package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/attendance/models"
	dErrors "tally/pkg/domain-errors"
)

func testRecord() models.Record {
	key := models.SessionKey{ClassID: "CS101", SessionID: "2026-03-02"}
	return models.NewRecord(key, "ab", models.StatusAbsent, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
}

func TestAttendanceEnvelope(t *testing.T) {
	rec := testRecord()
	env, err := AttendanceEnvelope(rec)
	require.NoError(t, err)

	assert.Equal(t, KindAttendance, env.Kind)
	assert.Equal(t, "CS101:2026-03-02", env.Key)
	assert.Equal(t, rec.ID.String(), env.ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, "absent", decoded["status"])
	assert.Equal(t, "2026-03-02T10:00:00Z", decoded["event_timestamp"])

	again, err := AttendanceEnvelope(rec)
	require.NoError(t, err)
	assert.Equal(t, env.Digest(), again.Digest(), "encoding is deterministic")
}

func TestRouter(t *testing.T) {
	r := NewRouter("attendance.records", "attendance.telemetry")
	assert.Equal(t, Topic("attendance.records"), r.TopicFor(KindAttendance))
	assert.Equal(t, Topic("attendance.telemetry"), r.TopicFor(KindTelemetry))
	assert.Equal(t, Topic("attendance.records"), r.TopicFor(Kind("unknown")))
	assert.Equal(t, []Topic{"attendance.records", "attendance.telemetry"}, r.Topics())

	same := NewRouter("all", "all")
	assert.Equal(t, []Topic{"all"}, same.Topics())
}

func TestFailedWrapsOnce(t *testing.T) {
	base := errors.New("broker down")
	err := Failed(base, "publish failed")
	assert.True(t, dErrors.Is(err, dErrors.CodePublishFailed))
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, Failed(err, "again"))
	assert.NoError(t, Failed(nil, "noop"))
}

func TestInMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	env, err := AttendanceEnvelope(testRecord())
	require.NoError(t, err)

	t.Run("markers strictly increase", func(t *testing.T) {
		p := NewInMemoryPublisher()
		m1, err := p.Publish(ctx, "t", env)
		require.NoError(t, err)
		m2, err := p.Publish(ctx, "t", env)
		require.NoError(t, err)
		assert.Equal(t, SequenceMarker("1"), m1)
		assert.Equal(t, SequenceMarker("2"), m2)
		assert.Len(t, p.Published(), 2)
	})

	t.Run("injected failure assigns no marker", func(t *testing.T) {
		p := NewInMemoryPublisher(WithFailure(func(Topic, Envelope) error { return errors.New("nope") }))
		_, err := p.Publish(ctx, "t", env)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePublishFailed))
		assert.Empty(t, p.Published())
	})

	t.Run("cancelled context fails", func(t *testing.T) {
		p := NewInMemoryPublisher()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.Publish(cctx, "t", env)
		assert.Error(t, err)
	})
}
