package handler

import (
	"tally/internal/attendance/models"
	dErrors "tally/pkg/domain-errors"
)

type SaltResponse struct {
	ClassID      string `json:"class_id"`
	SessionStart string `json:"session_start"`
	Salt         string `json:"salt"`
}

type RecordAttendanceResponse struct {
	RecordID       string `json:"record_id"`
	Status         string `json:"status"`
	Pseudonym      string `json:"pseudonym"`
	SequenceMarker string `json:"sequence_marker"`
	Duplicate      bool   `json:"duplicate"`
}

func toRecordAttendanceResponse(res *models.TapResult) RecordAttendanceResponse {
	return RecordAttendanceResponse{
		RecordID:       res.Record.ID.String(),
		Status:         res.Record.Status.String(),
		Pseudonym:      res.Record.Pseudonym.String(),
		SequenceMarker: res.SequenceMarker,
		Duplicate:      res.Duplicate,
	}
}

type AbsenteeResponse struct {
	StudentID      string `json:"student_id"`
	Pseudonym      string `json:"pseudonym"`
	SequenceMarker string `json:"sequence_marker"`
	LateCorrection bool   `json:"late_correction"`
}

type FailureResponse struct {
	StudentID      string `json:"student_id"`
	Pseudonym      string `json:"pseudonym"`
	Kind           string `json:"kind"`
	Error          string `json:"error"`
	SequenceMarker string `json:"sequence_marker,omitempty"`
}

type CloseSessionResponse struct {
	ClassID        string             `json:"class_id"`
	SessionID      string             `json:"session_id"`
	TotalRoster    int                `json:"total_roster"`
	Attended       int                `json:"attended"`
	MarkedAbsent   int                `json:"marked_absent"`
	AlreadyAbsent  int                `json:"already_absent"`
	Absentees      []AbsenteeResponse `json:"absentees"`
	Failures       []FailureResponse  `json:"failures"`
	TokenConflicts []string           `json:"token_conflicts,omitempty"`
}

func toCloseSessionResponse(res *models.CloseResult) CloseSessionResponse {
	out := CloseSessionResponse{
		ClassID:       res.ClassID.String(),
		SessionID:     res.SessionID.String(),
		TotalRoster:   res.TotalRoster,
		Attended:      res.Attended,
		MarkedAbsent:  res.MarkedAbsent,
		AlreadyAbsent: res.AlreadyAbsent,
		Absentees:     make([]AbsenteeResponse, 0, len(res.Absentees)),
		Failures:      make([]FailureResponse, 0, len(res.Failures)),
	}
	for _, a := range res.Absentees {
		out.Absentees = append(out.Absentees, AbsenteeResponse{
			StudentID:      a.StudentID.String(),
			Pseudonym:      a.Pseudonym.String(),
			SequenceMarker: a.SequenceMarker,
			LateCorrection: a.LateCorrection,
		})
	}
	for _, studentID := range res.TokenConflicts {
		out.TokenConflicts = append(out.TokenConflicts, studentID.String())
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, FailureResponse{
			StudentID:      f.StudentID.String(),
			Pseudonym:      f.Pseudonym.String(),
			Kind:           string(f.Kind),
			Error:          failureMessage(f),
			SequenceMarker: f.SequenceMarker,
		})
	}
	return out
}

// failureMessage keeps infrastructure detail out of responses.
func failureMessage(f models.CloseFailure) string {
	switch f.Kind {
	case dErrors.CodePublishFailed:
		return "absent record was not published; retry the close"
	case dErrors.CodeUnavailable:
		return "absent record was published but not committed"
	default:
		return "absent record could not be prepared"
	}
}
