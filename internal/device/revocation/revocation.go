// Package revocation tracks revoked device token IDs until the tokens expire.
package revocation

import (
	"context"
	"errors"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// Store is a token revocation list.
type Store interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ErrInvalidTTL is returned for non-positive revocation lifetimes.
var ErrInvalidTTL = errors.New("revocation ttl must be positive")

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
