package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tally/internal/attendance/models"
	"tally/pkg/platform/sentinel"
)

type InMemoryLedgerSuite struct {
	ledgerContractSuite
}

func TestInMemoryLedgerSuite(t *testing.T) {
	s := new(InMemoryLedgerSuite)
	s.newLedger = func() Ledger { return NewInMemoryLedger() }
	s.newLocker = func() Locker { return NewKeyedLocker() }
	suite.Run(t, s)
}

func (s *InMemoryLedgerSuite) TestSnapshotDoesNotCreateSessions() {
	l := NewInMemoryLedger()
	_, err := l.Snapshot(s.ctx, models.SessionKey{ClassID: "CS101", SessionID: "s1"})
	s.Require().NoError(err)
	s.Equal(0, l.Sessions())
}

func TestKeyedLockerReleasesEntries(t *testing.T) {
	l := NewKeyedLocker()
	key := models.SessionKey{ClassID: "CS101", SessionID: "s1"}

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1, l.held())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	require.ErrorIs(t, err, sentinel.ErrLockTimeout)

	unlock()
	assert.Equal(t, 0, l.held())
}
