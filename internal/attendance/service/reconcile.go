package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tally/internal/attendance/models"
	"tally/internal/attendance/publish"
	"tally/internal/pseudonym"
	"tally/internal/roster"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// CloseRequest identifies the session to reconcile.
type CloseRequest struct {
	ClassID   id.ClassID
	SessionID id.SessionID
}

// CloseSession looks up the session and its roster, then reconciles it with
// the service's secret key at the current time.
func (s *Service) CloseSession(ctx context.Context, req CloseRequest) (*models.CloseResult, error) {
	if req.ClassID == "" || req.SessionID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "class_id and session_id are required")
	}
	key := models.SessionKey{ClassID: req.ClassID, SessionID: req.SessionID}

	sess, _, err := s.lookupSession(ctx, key)
	if err != nil {
		return nil, err
	}
	entries, err := s.roster.Roster(ctx, key.ClassID)
	if err != nil {
		return nil, translateStoreErr(err, "class roster not found", "failed to load roster")
	}
	return s.Reconcile(ctx, key, entries, s.deriver.SecretKey(), sess.StartISO, s.now())
}

type candidate struct {
	studentID id.StudentID
	pseudonym pseudonym.Pseudonym
}

type outcome struct {
	absentee *models.Absentee
	failure  *models.CloseFailure
}

// Reconcile marks every roster member missing from the ledger as absent.
//
// The session lock is held from snapshot until every absentee is either
// committed or reported, so concurrent closes of one session never publish
// the same absentee twice. Each absent record is published before it is
// committed; a failed publish leaves the ledger untouched and a later close
// retries exactly those members. Attended is computed from the snapshot
// taken before any commit.
func (s *Service) Reconcile(
	ctx context.Context,
	key models.SessionKey,
	entries []roster.Entry,
	secretKey []byte,
	sessionStartISO string,
	closeTime time.Time,
) (result *models.CloseResult, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "attendance.Reconcile", trace.WithAttributes(
		attribute.String("attendance.class_id", key.ClassID.String()),
		attribute.String("attendance.session_id", key.SessionID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile failed")
			s.metrics.RecordClose("error", time.Since(started), 0, 0, nil)
		}
		span.End()
	}()

	entries, conflicts := roster.Dedupe(entries)
	for _, e := range conflicts {
		s.logger.WarnContext(ctx, "roster entry shares an identity token with another student",
			"session", key.String(),
			"student_id", e.StudentID.String(),
		)
	}

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return nil, translateStoreErr(err, "session not found", "failed to acquire session close lock")
	}
	defer unlock()

	salt := pseudonym.DeriveSalt(secretKey, string(key.ClassID), sessionStartISO)
	snapshot, err := s.ledger.Snapshot(ctx, key)
	if err != nil {
		return nil, translateStoreErr(err, "session not found", "failed to read ledger")
	}

	result = &models.CloseResult{
		ClassID:     key.ClassID,
		SessionID:   key.SessionID,
		TotalRoster: len(entries),
		ClosedAt:    closeTime.UTC(),
	}
	for _, e := range conflicts {
		result.TokenConflicts = append(result.TokenConflicts, e.StudentID)
	}
	var candidates []candidate
	for _, e := range entries {
		p := pseudonym.ComputeHash(e.RawIdentityToken, salt)
		status, seen := snapshot[p]
		switch {
		case seen && status.Present():
			result.Attended++
		case seen:
			result.AlreadyAbsent++
		default:
			candidates = append(candidates, candidate{studentID: e.StudentID, pseudonym: p})
		}
	}

	outcomes := make([]outcome, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			outcomes[i] = s.emitAbsent(ctx, key, c, closeTime)
			return nil
		})
	}
	_ = g.Wait()
	unlock()

	lateCorrections := 0
	var failureKinds []string
	for _, o := range outcomes {
		if o.failure != nil {
			result.Failures = append(result.Failures, *o.failure)
			failureKinds = append(failureKinds, string(o.failure.Kind))
			continue
		}
		if o.absentee.LateCorrection {
			lateCorrections++
		}
		result.Absentees = append(result.Absentees, *o.absentee)
	}
	result.MarkedAbsent = len(result.Absentees)

	outcomeLabel := "complete"
	if len(result.Failures) > 0 {
		outcomeLabel = "partial"
	}
	s.metrics.RecordClose(outcomeLabel, time.Since(started), result.MarkedAbsent, lateCorrections, failureKinds)
	span.SetAttributes(
		attribute.Int("attendance.total_roster", result.TotalRoster),
		attribute.Int("attendance.marked_absent", result.MarkedAbsent),
		attribute.Int("attendance.failures", len(result.Failures)),
	)

	s.logger.InfoContext(ctx, "session closed",
		"session", key.String(),
		"total_roster", result.TotalRoster,
		"attended", result.Attended,
		"marked_absent", result.MarkedAbsent,
		"already_absent", result.AlreadyAbsent,
		"late_corrections", lateCorrections,
		"failures", len(result.Failures),
		"token_conflicts", len(result.TokenConflicts),
	)
	s.publishSummary(ctx, result)
	return result, nil
}

// emitAbsent publishes one absent record, then commits it.
func (s *Service) emitAbsent(ctx context.Context, key models.SessionKey, c candidate, closeTime time.Time) outcome {
	rec := models.NewRecord(key, c.pseudonym, models.StatusAbsent, closeTime)
	fail := func(kind dErrors.Code, marker publish.SequenceMarker, err error) outcome {
		s.logger.WarnContext(ctx, "absentee not reconciled",
			"session", key.String(),
			"pseudonym", c.pseudonym.Short(),
			"kind", string(kind),
			"error", err,
		)
		return outcome{failure: &models.CloseFailure{
			StudentID:      c.studentID,
			Pseudonym:      c.pseudonym,
			Kind:           kind,
			SequenceMarker: marker.String(),
			Err:            err,
		}}
	}

	env, err := publish.AttendanceEnvelope(rec)
	if err != nil {
		return fail(dErrors.CodeInternal, "", err)
	}
	marker, err := s.publisher.Publish(ctx, s.router.TopicFor(publish.KindAttendance), env)
	if err != nil {
		return fail(dErrors.CodePublishFailed, "", publish.Failed(err, "absent record was not published"))
	}

	// The record is out; commit it even if the caller has gone away so a
	// later close does not publish it again.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	alreadyPresent, err := s.ledger.RecordPresence(commitCtx, key, c.pseudonym, models.StatusAbsent)
	if err != nil {
		return fail(dErrors.CodeUnavailable, marker, err)
	}
	if alreadyPresent {
		s.logger.InfoContext(ctx, "late correction",
			"session", key.String(),
			"pseudonym", c.pseudonym.Short(),
			"sequence_marker", marker.String(),
		)
	}
	return outcome{absentee: &models.Absentee{
		StudentID:      c.studentID,
		Pseudonym:      c.pseudonym,
		SequenceMarker: marker.String(),
		LateCorrection: alreadyPresent,
	}}
}

// publishSummary emits close telemetry. Failures are logged only.
func (s *Service) publishSummary(ctx context.Context, result *models.CloseResult) {
	env, err := publish.SummaryEnvelope(result.Summary())
	if err == nil {
		_, err = s.publisher.Publish(ctx, s.router.TopicFor(publish.KindTelemetry), env)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "session summary not published",
			"class_id", result.ClassID.String(),
			"session_id", result.SessionID.String(),
			"error", err,
		)
	}
}
