// Package models holds the attendance domain types shared by the ledger,
// publisher and service packages.
package models

import (
	"time"

	"github.com/google/uuid"

	"tally/internal/pseudonym"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// Status is the attendance classification of one person in one session.
type Status string

const (
	StatusOnTime Status = "on_time"
	StatusLate   Status = "late"
	StatusAbsent Status = "absent"
)

// ParseStatus validates a stored or transmitted status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusOnTime, StatusLate, StatusAbsent:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown attendance status")
	}
}

func (s Status) String() string { return string(s) }

// Present reports whether the status counts as attended.
func (s Status) Present() bool {
	return s == StatusOnTime || s == StatusLate
}

// SessionKey identifies one class session.
type SessionKey struct {
	ClassID   id.ClassID
	SessionID id.SessionID
}

// String returns "classID:sessionID". Neither part may contain the separator.
func (k SessionKey) String() string {
	return k.ClassID.String() + id.KeySeparator + k.SessionID.String()
}

// Membership maps pseudonyms recorded for a session to their status.
type Membership map[pseudonym.Pseudonym]Status

// Clone returns an independent copy.
func (m Membership) Clone() Membership {
	out := make(Membership, len(m))
	for p, s := range m {
		out[p] = s
	}
	return out
}

// Record is an immutable attendance record as published to the ordering service.
type Record struct {
	ID             uuid.UUID           `json:"record_id"`
	ClassID        id.ClassID          `json:"class_id"`
	SessionID      id.SessionID        `json:"session_id"`
	Pseudonym      pseudonym.Pseudonym `json:"pseudonym"`
	Status         Status              `json:"status"`
	EventTimestamp time.Time           `json:"event_timestamp"`
}

// NewRecord builds a record with a fresh ID.
func NewRecord(key SessionKey, p pseudonym.Pseudonym, status Status, at time.Time) Record {
	return Record{
		ID:             uuid.New(),
		ClassID:        key.ClassID,
		SessionID:      key.SessionID,
		Pseudonym:      p,
		Status:         status,
		EventTimestamp: at.UTC(),
	}
}

// Key returns the record's session key.
func (r Record) Key() SessionKey {
	return SessionKey{ClassID: r.ClassID, SessionID: r.SessionID}
}

// SessionSummary is the telemetry emitted after a session close.
type SessionSummary struct {
	ClassID       id.ClassID   `json:"class_id"`
	SessionID     id.SessionID `json:"session_id"`
	TotalRoster   int          `json:"total_roster"`
	Attended      int          `json:"attended"`
	MarkedAbsent  int          `json:"marked_absent"`
	AlreadyAbsent int          `json:"already_absent"`
	Failed        int          `json:"failed"`
	ClosedAt      time.Time    `json:"closed_at"`
}

// Classify maps a tap time to on_time or late relative to the session start.
// Taps at or before start+tolerance are on time, including early taps. It
// never returns StatusAbsent.
func Classify(event, start time.Time, toleranceMinutes int) Status {
	elapsed := event.Sub(start)
	if elapsed <= time.Duration(toleranceMinutes)*time.Minute {
		return StatusOnTime
	}
	return StatusLate
}
