// Package roster provides read-only class schedule and roster lookups.
package roster

import (
	"context"
	"fmt"
	"time"

	id "tally/pkg/domain"
)

// ClassSession is the schedule metadata of one session.
type ClassSession struct {
	ClassID   id.ClassID
	SessionID id.SessionID
	// StartISO is the exact RFC 3339 string the session salt is derived from.
	StartISO         string
	ToleranceMinutes int
}

// Start parses StartISO.
func (s ClassSession) Start() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s.StartISO)
	if err != nil {
		return time.Time{}, fmt.Errorf("session %s:%s start %q: %w", s.ClassID, s.SessionID, s.StartISO, err)
	}
	return t, nil
}

// Entry is one enrolled student. RawIdentityToken never leaves the server.
type Entry struct {
	StudentID        id.StudentID
	RawIdentityToken string
}

// Store looks up sessions and rosters. Both methods return
// sentinel.ErrNotFound for unknown keys.
type Store interface {
	Session(ctx context.Context, classID id.ClassID, sessionID id.SessionID) (ClassSession, error)
	Roster(ctx context.Context, classID id.ClassID) ([]Entry, error)
}

// Dedupe drops repeated students and repeated tokens, keeping the first
// occurrence of each. Entries dropped because a different student already
// holds their token are returned as conflicts; they cannot be reconciled.
func Dedupe(entries []Entry) (kept, conflicts []Entry) {
	students := make(map[id.StudentID]struct{}, len(entries))
	tokens := make(map[string]struct{}, len(entries))
	kept = make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := students[e.StudentID]; ok {
			continue
		}
		if _, ok := tokens[e.RawIdentityToken]; ok {
			conflicts = append(conflicts, e)
			continue
		}
		students[e.StudentID] = struct{}{}
		tokens[e.RawIdentityToken] = struct{}{}
		kept = append(kept, e)
	}
	return kept, conflicts
}
