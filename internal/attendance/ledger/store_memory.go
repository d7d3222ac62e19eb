package ledger

import (
	"context"
	"sync"

	"tally/internal/attendance/models"
	"tally/internal/pseudonym"
)

// InMemoryLedger keeps membership in process memory. A short-held lookup
// mutex hands out per-session entries, each guarded by its own mutex, so taps
// for different sessions never contend.
type InMemoryLedger struct {
	mu       sync.Mutex
	sessions map[models.SessionKey]*sessionEntry
}

type sessionEntry struct {
	mu      sync.Mutex
	members models.Membership
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{sessions: make(map[models.SessionKey]*sessionEntry)}
}

func (l *InMemoryLedger) entry(key models.SessionKey, create bool) *sessionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.sessions[key]
	if !ok && create {
		e = &sessionEntry{members: make(models.Membership)}
		l.sessions[key] = e
	}
	return e
}

func (l *InMemoryLedger) RecordPresence(_ context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	if err := validateEntry(p, status); err != nil {
		return false, err
	}
	e := l.entry(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.members[p]; ok {
		return true, nil
	}
	e.members[p] = status
	return false, nil
}

func (l *InMemoryLedger) Snapshot(_ context.Context, key models.SessionKey) (models.Membership, error) {
	e := l.entry(key, false)
	if e == nil {
		return models.Membership{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.members.Clone(), nil
}

func (l *InMemoryLedger) Forget(_ context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	e := l.entry(key, false)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if current, ok := e.members[p]; !ok || current != status {
		return false, nil
	}
	delete(e.members, p)
	return true, nil
}

// Sessions returns the number of sessions with at least one entry.
func (l *InMemoryLedger) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
