package models

import (
	"strings"
	"time"

	"tally/internal/pseudonym"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// TapRequest is one presence event. Exactly one of Pseudonym or CardToken is
// set; CardToken is hashed by the server and never stored.
type TapRequest struct {
	ClassID        id.ClassID
	SessionID      id.SessionID
	Pseudonym      pseudonym.Pseudonym
	CardToken      string
	EventTimestamp time.Time
}

// Validate checks the identity fields. IDs are parsed by the transport.
func (r *TapRequest) Validate() error {
	if r.ClassID == "" || r.SessionID == "" {
		return dErrors.New(dErrors.CodeValidation, "class_id and session_id are required")
	}
	hasPseudonym := r.Pseudonym != ""
	hasToken := strings.TrimSpace(r.CardToken) != ""
	switch {
	case hasPseudonym && hasToken:
		return dErrors.New(dErrors.CodeValidation, "provide either pseudonym or card_token, not both")
	case !hasPseudonym && !hasToken:
		return dErrors.New(dErrors.CodeValidation, "pseudonym or card_token is required")
	}
	return nil
}

// Key returns the request's session key.
func (r *TapRequest) Key() SessionKey {
	return SessionKey{ClassID: r.ClassID, SessionID: r.SessionID}
}

// TapResult is the ingestion outcome. Duplicate taps carry no sequence marker.
type TapResult struct {
	Record         Record
	SequenceMarker string
	Duplicate      bool
}

// Absentee is a roster member published as absent by a close.
type Absentee struct {
	StudentID      id.StudentID
	Pseudonym      pseudonym.Pseudonym
	SequenceMarker string
	// LateCorrection is set when a live tap was committed while the absent
	// record was in flight. The ledger keeps the live status.
	LateCorrection bool
}

// CloseFailure is a per-absentee failure. A publish_failed entry left the
// ledger untouched; an unavailable entry was published but not committed.
type CloseFailure struct {
	StudentID      id.StudentID
	Pseudonym      pseudonym.Pseudonym
	Kind           dErrors.Code
	SequenceMarker string
	Err            error
}

// CloseResult aggregates one session close.
type CloseResult struct {
	ClassID       id.ClassID
	SessionID     id.SessionID
	TotalRoster   int
	Attended      int
	MarkedAbsent  int
	AlreadyAbsent int
	Absentees     []Absentee
	Failures      []CloseFailure
	// TokenConflicts lists students dropped from the roster because another
	// student carries the same identity token.
	TokenConflicts []id.StudentID
	ClosedAt       time.Time
}

// Summary returns the telemetry view of the result.
func (r *CloseResult) Summary() SessionSummary {
	return SessionSummary{
		ClassID:       r.ClassID,
		SessionID:     r.SessionID,
		TotalRoster:   r.TotalRoster,
		Attended:      r.Attended,
		MarkedAbsent:  r.MarkedAbsent,
		AlreadyAbsent: r.AlreadyAbsent,
		Failed:        len(r.Failures),
		ClosedAt:      r.ClosedAt,
	}
}
