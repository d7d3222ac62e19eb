package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists revoked token IDs in device_token_revocations.
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

type PostgresOption func(*PostgresStore)

func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return s.RevokeMany(ctx, []string{tokenID}, ttl)
}

// RevokeMany revokes every non-empty ID in one statement.
func (s *PostgresStore) RevokeMany(ctx context.Context, tokenIDs []string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	valid := make([]string, 0, len(tokenIDs))
	for _, jti := range tokenIDs {
		if jti != "" {
			valid = append(valid, jti)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_token_revocations (jti, expires_at)
		SELECT unnest($1::text[]), $2
		ON CONFLICT (jti) DO UPDATE SET
			expires_at = EXCLUDED.expires_at`,
		pq.Array(valid), s.clock().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("revoke device tokens: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM device_token_revocations WHERE jti = $1`, tokenID,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check device token revocation: %w", err)
	}
	return s.clock().Before(expiresAt), nil
}
