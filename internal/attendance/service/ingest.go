package service

import (
	"context"

	"tally/internal/attendance/models"
	"tally/internal/attendance/publish"
	"tally/internal/pseudonym"
)

// RecordAttendance classifies a tap, records it in the ledger and publishes
// it. A duplicate tap returns Duplicate without publishing again.
//
// Presence is committed before publication so a student who tapped is never
// reconciled as absent. If publication fails the presence is forgotten and the
// error is publish_failed, so a retried tap is recorded and published afresh.
func (s *Service) RecordAttendance(ctx context.Context, req models.TapRequest) (*models.TapResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := req.Key()

	sess, start, err := s.lookupSession(ctx, key)
	if err != nil {
		return nil, err
	}

	p := req.Pseudonym
	if req.CardToken != "" {
		p = s.deriver.Pseudonym(req.CardToken, string(key.ClassID), sess.StartISO)
	} else if p, err = pseudonym.ParsePseudonym(string(p)); err != nil {
		return nil, err
	}

	at := req.EventTimestamp
	if at.IsZero() {
		at = s.now()
	}
	status := models.Classify(at, start, sess.ToleranceMinutes)
	rec := models.NewRecord(key, p, status, at)

	alreadyPresent, err := s.ledger.RecordPresence(ctx, key, p, status)
	if err != nil {
		return nil, translateStoreErr(err, "session not found", "failed to record presence")
	}
	if alreadyPresent {
		s.metrics.RecordDuplicate()
		s.logger.DebugContext(ctx, "duplicate tap",
			"session", key.String(),
			"pseudonym", p.Short(),
		)
		return &models.TapResult{Record: rec, Duplicate: true}, nil
	}
	s.metrics.RecordTap(status.String())

	env, err := publish.AttendanceEnvelope(rec)
	if err != nil {
		s.forgetPresence(ctx, key, p, status)
		return nil, err
	}
	marker, err := s.publisher.Publish(ctx, s.router.TopicFor(publish.KindAttendance), env)
	if err != nil {
		s.metrics.RecordTapPublishFailure()
		s.logger.WarnContext(ctx, "tap not published",
			"session", key.String(),
			"record_id", rec.ID.String(),
			"pseudonym", p.Short(),
			"error", err,
		)
		s.forgetPresence(ctx, key, p, status)
		return nil, publish.Failed(err, "attendance record was not published")
	}

	s.logger.InfoContext(ctx, "tap recorded",
		"session", key.String(),
		"record_id", rec.ID.String(),
		"status", status.String(),
		"sequence_marker", marker.String(),
	)
	return &models.TapResult{Record: rec, SequenceMarker: marker.String()}, nil
}

// forgetPresence undoes a presence whose record never went out. It runs past
// caller cancellation; a failure leaves the student present but unpublished.
func (s *Service) forgetPresence(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) {
	forgetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if _, err := s.ledger.Forget(forgetCtx, key, p, status); err != nil {
		s.logger.ErrorContext(ctx, "tap presence kept without a published record",
			"session", key.String(),
			"pseudonym", p.Short(),
			"error", err,
		)
	}
}
