package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "tally/pkg/domain"
	"tally/pkg/platform/sentinel"
)

// PostgresStore reads class_sessions and roster_entries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Session(ctx context.Context, classID id.ClassID, sessionID id.SessionID) (ClassSession, error) {
	sess := ClassSession{ClassID: classID, SessionID: sessionID}
	err := s.db.QueryRowContext(ctx, `
		SELECT start_iso, tolerance_minutes
		FROM class_sessions
		WHERE class_id = $1 AND session_id = $2`,
		string(classID), string(sessionID),
	).Scan(&sess.StartISO, &sess.ToleranceMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return ClassSession{}, sentinel.ErrNotFound
	}
	if err != nil {
		return ClassSession{}, fmt.Errorf("find session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return sess, nil
}

func (s *PostgresStore) Roster(ctx context.Context, classID id.ClassID) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, raw_identity_token
		FROM roster_entries
		WHERE class_id = $1
		ORDER BY student_id`,
		string(classID),
	)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var studentID, token string
		if err := rows.Scan(&studentID, &token); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		entries = append(entries, Entry{StudentID: id.StudentID(studentID), RawIdentityToken: token})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w: %w", sentinel.ErrUnavailable, err)
	}
	if len(entries) == 0 {
		// A class with sessions but no students is known and empty.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM class_sessions WHERE class_id = $1)`, string(classID),
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check class: %w: %w", sentinel.ErrUnavailable, err)
		}
		if !exists {
			return nil, sentinel.ErrNotFound
		}
		return []Entry{}, nil
	}
	return entries, nil
}

// Import upserts every class, roster entry and session in seed inside one
// transaction. Arrays keep it to one round trip per table.
func (s *PostgresStore) Import(ctx context.Context, seed *Seed) error {
	sessions, rosters, err := seed.resolve()
	if err != nil {
		return err
	}

	var classIDs, studentIDs, tokens []string
	for classID, entries := range rosters {
		for _, e := range entries {
			classIDs = append(classIDs, string(classID))
			studentIDs = append(studentIDs, string(e.StudentID))
			tokens = append(tokens, e.RawIdentityToken)
		}
	}
	var sessClasses, sessIDs, starts []string
	var tolerances []int64
	for _, sess := range sessions {
		sessClasses = append(sessClasses, string(sess.ClassID))
		sessIDs = append(sessIDs, string(sess.SessionID))
		starts = append(starts, sess.StartISO)
		tolerances = append(tolerances, int64(sess.ToleranceMinutes))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin roster import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(classIDs) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO roster_entries (class_id, student_id, raw_identity_token)
			SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
			ON CONFLICT (class_id, student_id) DO UPDATE SET
				raw_identity_token = EXCLUDED.raw_identity_token`,
			pq.Array(classIDs), pq.Array(studentIDs), pq.Array(tokens),
		); err != nil {
			return fmt.Errorf("import roster entries: %w", err)
		}
	}
	if len(sessClasses) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO class_sessions (class_id, session_id, start_iso, tolerance_minutes)
			SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::int[])
			ON CONFLICT (class_id, session_id) DO UPDATE SET
				start_iso = EXCLUDED.start_iso,
				tolerance_minutes = EXCLUDED.tolerance_minutes`,
			pq.Array(sessClasses), pq.Array(sessIDs), pq.Array(starts), pq.Array(tolerances),
		); err != nil {
			return fmt.Errorf("import sessions: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roster import: %w", err)
	}
	return nil
}
