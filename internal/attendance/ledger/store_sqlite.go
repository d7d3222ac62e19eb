package ledger

import (
	"context"
	"database/sql"
	"time"

	"tally/internal/attendance/models"
	"tally/internal/platform/sqlite"
	"tally/internal/pseudonym"
)

// SQLiteLedger persists membership in a local SQLite file. Writes go through
// the single writer so RecordPresence never races another transaction.
type SQLiteLedger struct {
	db     *sql.DB
	writer *sqlite.Worker
	now    func() time.Time
}

func NewSQLiteLedger(db *sql.DB, writer *sqlite.Worker) *SQLiteLedger {
	return &SQLiteLedger{db: db, writer: writer, now: time.Now}
}

func (l *SQLiteLedger) RecordPresence(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	if err := validateEntry(p, status); err != nil {
		return false, err
	}
	var already bool
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO attendance_ledger(class_id, session_id, pseudonym, status, recorded_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(class_id, session_id, pseudonym) DO NOTHING;
`, key.ClassID.String(), key.SessionID.String(), p.String(), status.String(), l.now().UTC().UnixMilli())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		already = n == 0
		return nil
	})
	if err != nil {
		return false, unavailable("record presence", err)
	}
	return already, nil
}

func (l *SQLiteLedger) Snapshot(ctx context.Context, key models.SessionKey) (models.Membership, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT pseudonym, status FROM attendance_ledger
WHERE class_id = ? AND session_id = ?;
`, key.ClassID.String(), key.SessionID.String())
	if err != nil {
		return nil, unavailable("snapshot", err)
	}
	defer rows.Close()
	return scanMembership(rows)
}

func (l *SQLiteLedger) Forget(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	var removed bool
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM attendance_ledger
WHERE class_id = ? AND session_id = ? AND pseudonym = ? AND status = ?;
`, key.ClassID.String(), key.SessionID.String(), p.String(), status.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n == 1
		return nil
	})
	if err != nil {
		return false, unavailable("forget", err)
	}
	return removed, nil
}
