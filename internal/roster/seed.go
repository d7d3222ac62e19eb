package roster

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	id "tally/pkg/domain"
)

// Seed is the YAML roster file layout.
//
//	classes:
//	  - class_id: CS101
//	    roster:
//	      - student_id: s-001
//	        token: "04A2B9C1"
//	    sessions:
//	      - session_id: "2026-03-02"
//	        start: "2026-03-02T09:00:00Z"
//	        tolerance_minutes: 5
type Seed struct {
	Classes []SeedClass `yaml:"classes"`
}

type SeedClass struct {
	ClassID  string        `yaml:"class_id"`
	Roster   []SeedStudent `yaml:"roster"`
	Sessions []SeedSession `yaml:"sessions"`
}

type SeedStudent struct {
	StudentID string `yaml:"student_id"`
	Token     string `yaml:"token"`
}

type SeedSession struct {
	SessionID        string `yaml:"session_id"`
	Start            string `yaml:"start"`
	ToleranceMinutes *int   `yaml:"tolerance_minutes"`
}

// DefaultToleranceMinutes applies when a seeded session omits tolerance_minutes.
const DefaultToleranceMinutes = 5

// ReadSeedFile parses a YAML seed from disk.
func ReadSeedFile(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster seed: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes and validates a YAML seed.
func ParseSeed(raw []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode roster seed: %w", err)
	}
	if _, _, err := seed.resolve(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// resolve converts the seed into validated sessions and rosters keyed by class.
func (s *Seed) resolve() ([]ClassSession, map[id.ClassID][]Entry, error) {
	var sessions []ClassSession
	rosters := make(map[id.ClassID][]Entry, len(s.Classes))
	for i, c := range s.Classes {
		classID, err := id.ParseClassID(c.ClassID)
		if err != nil {
			return nil, nil, fmt.Errorf("classes[%d]: %w", i, err)
		}
		if _, dup := rosters[classID]; dup {
			return nil, nil, fmt.Errorf("classes[%d]: duplicate class %s", i, classID)
		}
		entries := make([]Entry, 0, len(c.Roster))
		for j, st := range c.Roster {
			studentID, err := id.ParseStudentID(st.StudentID)
			if err != nil {
				return nil, nil, fmt.Errorf("classes[%d].roster[%d]: %w", i, j, err)
			}
			if st.Token == "" {
				return nil, nil, fmt.Errorf("classes[%d].roster[%d]: token is required", i, j)
			}
			entries = append(entries, Entry{StudentID: studentID, RawIdentityToken: st.Token})
		}
		rosters[classID] = entries

		for j, ss := range c.Sessions {
			sessionID, err := id.ParseSessionID(ss.SessionID)
			if err != nil {
				return nil, nil, fmt.Errorf("classes[%d].sessions[%d]: %w", i, j, err)
			}
			tolerance := DefaultToleranceMinutes
			if ss.ToleranceMinutes != nil {
				tolerance = *ss.ToleranceMinutes
			}
			if tolerance < 0 {
				return nil, nil, fmt.Errorf("classes[%d].sessions[%d]: tolerance_minutes must not be negative", i, j)
			}
			if _, err := time.Parse(time.RFC3339Nano, ss.Start); err != nil {
				return nil, nil, fmt.Errorf("classes[%d].sessions[%d]: start must be RFC 3339: %w", i, j, err)
			}
			sessions = append(sessions, ClassSession{
				ClassID:          classID,
				SessionID:        sessionID,
				StartISO:         ss.Start,
				ToleranceMinutes: tolerance,
			})
		}
	}
	return sessions, rosters, nil
}
