package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, ledgers and publishers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: class, session or roster does not exist in the store
// - ErrUnavailable: backing store or broker temporarily unavailable
// - ErrLockTimeout: a per-session lock could not be acquired before the deadline
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrLockTimeout = errors.New("lock timeout")
)
