// Package ledger records which pseudonyms have been seen in each session.
//
// Every backend offers the same contract: RecordPresence is an idempotent
// insert where the first writer's status wins, and Snapshot observes every
// completed RecordPresence for the key. Unknown sessions have empty membership.
package ledger

import (
	"context"
	"fmt"

	"tally/internal/attendance/models"
	"tally/internal/pseudonym"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/sentinel"
)

// Ledger is the per-session presence store.
type Ledger interface {
	// RecordPresence stores status for p unless p is already present, and
	// reports whether it was.
	RecordPresence(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (alreadyPresent bool, err error)
	// Snapshot returns a copy of the session's membership.
	Snapshot(ctx context.Context, key models.SessionKey) (models.Membership, error)
	// Forget removes p only while it is still stored with status, and reports
	// whether an entry was removed. It undoes a presence whose publication failed.
	Forget(ctx context.Context, key models.SessionKey, p pseudonym.Pseudonym, status models.Status) (removed bool, err error)
}

// Locker provides per-session mutual exclusion for session closes.
type Locker interface {
	// Lock blocks until the session lock is held or ctx ends. The returned
	// unlock is safe to call more than once.
	Lock(ctx context.Context, key models.SessionKey) (unlock func(), err error)
}

func validateEntry(p pseudonym.Pseudonym, status models.Status) error {
	if len(p) != pseudonym.PseudonymLength {
		return dErrors.New(dErrors.CodeValidation, "pseudonym must be 64 hex characters")
	}
	if _, err := models.ParseStatus(string(status)); err != nil {
		return err
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("ledger %s: %w: %w", op, sentinel.ErrUnavailable, err)
}
