package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"io"
	"sync"

	"tally/internal/attendance/models"
	"tally/internal/pseudonym"
	"tally/pkg/platform/sentinel"
)

// PostgresLedger persists membership in the attendance_ledger table.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) RecordPresence(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	if err := validateEntry(p, status); err != nil {
		return false, err
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO attendance_ledger (class_id, session_id, pseudonym, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (class_id, session_id, pseudonym) DO NOTHING
	`, key.ClassID.String(), key.SessionID.String(), p.String(), status.String())
	if err != nil {
		return false, unavailable("record presence", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("record presence", err)
	}
	return n == 0, nil
}

func (l *PostgresLedger) Snapshot(ctx context.Context, key models.SessionKey) (models.Membership, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT pseudonym, status FROM attendance_ledger
		WHERE class_id = $1 AND session_id = $2
	`, key.ClassID.String(), key.SessionID.String())
	if err != nil {
		return nil, unavailable("snapshot", err)
	}
	defer rows.Close()
	return scanMembership(rows)
}

func (l *PostgresLedger) Forget(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM attendance_ledger
		WHERE class_id = $1 AND session_id = $2 AND pseudonym = $3 AND status = $4
	`, key.ClassID.String(), key.SessionID.String(), p.String(), status.String())
	if err != nil {
		return false, unavailable("forget", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("forget", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMembership(rows rowScanner) (models.Membership, error) {
	out := make(models.Membership)
	for rows.Next() {
		var p, s string
		if err := rows.Scan(&p, &s); err != nil {
			return nil, unavailable("snapshot", err)
		}
		status, err := models.ParseStatus(s)
		if err != nil {
			return nil, unavailable("snapshot", err)
		}
		out[pseudonym.Pseudonym(p)] = status
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("snapshot", err)
	}
	return out, nil
}

// AdvisoryLocker holds a session-scoped pg_advisory_lock on a dedicated
// connection for the duration of the lock.
type AdvisoryLocker struct {
	db *sql.DB
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

func advisoryKey(key models.SessionKey) int64 {
	h := fnv.New64a()
	h.Write([]byte("tally:close:" + key.String()))
	return int64(h.Sum64())
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key models.SessionKey) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, unavailable("lock", err)
	}
	lockID := advisoryKey(key)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		// The lock may have been granted as ctx was cancelled.
		discardConn(conn)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("lock session %s: %w: %w", key, sentinel.ErrLockTimeout, ctx.Err())
		}
		return nil, unavailable("lock", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			var released bool
			err := conn.QueryRowContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", lockID).Scan(&released)
			if err != nil || !released {
				discardConn(conn)
				return
			}
			_ = conn.Close()
		})
	}, nil
}

// discardConn closes the physical connection instead of returning it to the
// pool, so a session-level advisory lock cannot outlive its holder.
func discardConn(conn rawConn) {
	_ = conn.Raw(func(dc any) error {
		if c, ok := dc.(io.Closer); ok {
			_ = c.Close()
		}
		return driver.ErrBadConn
	})
	_ = conn.Close()
}

type rawConn interface {
	Raw(f func(driverConn any) error) error
	Close() error
}
