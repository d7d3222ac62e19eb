package roster

import (
	"context"
	"slices"
	"sync"

	id "tally/pkg/domain"
	"tally/pkg/platform/sentinel"
)

type sessionKey struct {
	classID   id.ClassID
	sessionID id.SessionID
}

// InMemoryStore holds sessions and rosters in maps. Safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]ClassSession
	rosters  map[id.ClassID][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[sessionKey]ClassSession),
		rosters:  make(map[id.ClassID][]Entry),
	}
}

// LoadFile builds a store from a YAML seed file.
func LoadFile(path string) (*InMemoryStore, error) {
	seed, err := ReadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return FromSeed(seed)
}

// FromSeed builds a store from a parsed seed.
func FromSeed(seed *Seed) (*InMemoryStore, error) {
	sessions, rosters, err := seed.resolve()
	if err != nil {
		return nil, err
	}
	s := NewInMemoryStore()
	for classID, entries := range rosters {
		s.PutRoster(classID, entries)
	}
	for _, sess := range sessions {
		s.PutSession(sess)
	}
	return s, nil
}

func (s *InMemoryStore) PutSession(sess ClassSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey{sess.ClassID, sess.SessionID}] = sess
}

func (s *InMemoryStore) PutRoster(classID id.ClassID, entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters[classID] = slices.Clone(entries)
}

func (s *InMemoryStore) Session(_ context.Context, classID id.ClassID, sessionID id.SessionID) (ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey{classID, sessionID}]
	if !ok {
		return ClassSession{}, sentinel.ErrNotFound
	}
	return sess, nil
}

func (s *InMemoryStore) Roster(_ context.Context, classID id.ClassID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.rosters[classID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(entries), nil
}
