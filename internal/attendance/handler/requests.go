package handler

import (
	"strings"
	"time"

	"tally/internal/pseudonym"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// RecordAttendanceRequest is the body of POST /v1/attendance.
type RecordAttendanceRequest struct {
	ClassID        string `json:"class_id"`
	SessionID      string `json:"session_id"`
	Pseudonym      string `json:"pseudonym,omitempty"`
	CardToken      string `json:"card_token,omitempty"`
	EventTimestamp string `json:"event_timestamp,omitempty"`

	classID   id.ClassID
	sessionID id.SessionID
	pseudonym pseudonym.Pseudonym
	eventTime time.Time
}

// Validate implements httputil.Validatable.
func (r *RecordAttendanceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.classID, err = id.ParseClassID(r.ClassID); err != nil {
		return err
	}
	if r.sessionID, err = id.ParseSessionID(r.SessionID); err != nil {
		return err
	}

	// Tokens are hashed verbatim, so padding would never match the roster.
	r.Pseudonym = strings.TrimSpace(r.Pseudonym)
	r.CardToken = strings.TrimSpace(r.CardToken)
	switch {
	case r.Pseudonym != "" && r.CardToken != "":
		return dErrors.New(dErrors.CodeValidation, "provide either pseudonym or card_token, not both")
	case r.Pseudonym == "" && r.CardToken == "":
		return dErrors.New(dErrors.CodeValidation, "pseudonym or card_token is required")
	case r.Pseudonym != "":
		if r.pseudonym, err = pseudonym.ParsePseudonym(r.Pseudonym); err != nil {
			return err
		}
	case len(r.CardToken) > 256:
		return dErrors.New(dErrors.CodeValidation, "card_token must be at most 256 characters")
	}

	if ts := strings.TrimSpace(r.EventTimestamp); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "event_timestamp must be an RFC 3339 timestamp")
		}
		r.eventTime = t
	}
	return nil
}

// CloseSessionRequest is the body of POST /v1/sessions/close.
type CloseSessionRequest struct {
	ClassID   string `json:"class_id"`
	SessionID string `json:"session_id"`

	classID   id.ClassID
	sessionID id.SessionID
}

// Validate implements httputil.Validatable.
func (r *CloseSessionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.classID, err = id.ParseClassID(r.ClassID); err != nil {
		return err
	}
	if r.sessionID, err = id.ParseSessionID(r.SessionID); err != nil {
		return err
	}
	return nil
}
