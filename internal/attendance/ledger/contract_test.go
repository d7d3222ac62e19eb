package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"tally/internal/attendance/models"
	"tally/internal/pseudonym"
	id "tally/pkg/domain"
)

// ledgerContractSuite runs the behaviour every Ledger/Locker backend shares.
// Backend suites embed it and set newLedger/newLocker in SetupTest.
type ledgerContractSuite struct {
	suite.Suite
	ctx       context.Context
	ledger    Ledger
	locker    Locker
	newLedger func() Ledger
	newLocker func() Locker
	keySeq    atomic.Int64
}

func (s *ledgerContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = s.newLedger()
	if s.newLocker != nil {
		s.locker = s.newLocker()
	}
}

// freshKey avoids cross-test interference for backends that outlive a test.
func (s *ledgerContractSuite) freshKey() models.SessionKey {
	n := s.keySeq.Add(1)
	return models.SessionKey{
		ClassID:   "CS101",
		SessionID: id.SessionID(fmt.Sprintf("session-%d-%d", time.Now().UnixNano(), n)),
	}
}

func pseudo(i int) pseudonym.Pseudonym {
	h := sha256.Sum256([]byte(fmt.Sprintf("card-%04d", i)))
	return pseudonym.Pseudonym(hex.EncodeToString(h[:]))
}

func (s *ledgerContractSuite) TestRecordPresence() {
	s.Run("first insert is not already present", func() {
		key := s.freshKey()
		already, err := s.ledger.RecordPresence(s.ctx, key, pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)
		s.False(already)
	})

	s.Run("second insert is idempotent and keeps first status", func() {
		key := s.freshKey()
		_, err := s.ledger.RecordPresence(s.ctx, key, pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)

		already, err := s.ledger.RecordPresence(s.ctx, key, pseudo(1), models.StatusAbsent)
		s.Require().NoError(err)
		s.True(already)

		snap, err := s.ledger.Snapshot(s.ctx, key)
		s.Require().NoError(err)
		s.Len(snap, 1)
		s.Equal(models.StatusOnTime, snap[pseudo(1)])
	})

	s.Run("sessions are isolated", func() {
		a, b := s.freshKey(), s.freshKey()
		_, err := s.ledger.RecordPresence(s.ctx, a, pseudo(1), models.StatusLate)
		s.Require().NoError(err)

		already, err := s.ledger.RecordPresence(s.ctx, b, pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)
		s.False(already)
	})

	s.Run("rejects malformed entries", func() {
		_, err := s.ledger.RecordPresence(s.ctx, s.freshKey(), "short", models.StatusOnTime)
		s.Error(err)
		_, err = s.ledger.RecordPresence(s.ctx, s.freshKey(), pseudo(1), models.Status("excused"))
		s.Error(err)
	})
}

func (s *ledgerContractSuite) TestSnapshot() {
	s.Run("unknown session is empty", func() {
		snap, err := s.ledger.Snapshot(s.ctx, s.freshKey())
		s.Require().NoError(err)
		s.Empty(snap)
	})

	s.Run("snapshot is a copy", func() {
		key := s.freshKey()
		_, err := s.ledger.RecordPresence(s.ctx, key, pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)

		snap, err := s.ledger.Snapshot(s.ctx, key)
		s.Require().NoError(err)
		snap[pseudo(2)] = models.StatusLate

		again, err := s.ledger.Snapshot(s.ctx, key)
		s.Require().NoError(err)
		s.Len(again, 1)
	})
}

func (s *ledgerContractSuite) TestForget() {
	s.Run("removes an entry with the expected status", func() {
		key := s.freshKey()
		_, err := s.ledger.RecordPresence(s.ctx, key, pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)

		removed, err := s.ledger.Forget(s.ctx, key, pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)
		s.True(removed)

		already, err := s.ledger.RecordPresence(s.ctx, key, pseudo(1), models.StatusLate)
		s.Require().NoError(err)
		s.False(already, "a forgotten entry can be recorded again")
	})

	s.Run("keeps an entry with a different status", func() {
		key := s.freshKey()
		_, err := s.ledger.RecordPresence(s.ctx, key, pseudo(1), models.StatusAbsent)
		s.Require().NoError(err)

		removed, err := s.ledger.Forget(s.ctx, key, pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)
		s.False(removed)

		snap, err := s.ledger.Snapshot(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(models.StatusAbsent, snap[pseudo(1)])
	})

	s.Run("unknown entry is a no-op", func() {
		removed, err := s.ledger.Forget(s.ctx, s.freshKey(), pseudo(1), models.StatusOnTime)
		s.Require().NoError(err)
		s.False(removed)
	})
}

func (s *ledgerContractSuite) TestConcurrentPresence() {
	key := s.freshKey()
	const people, tapsEach = 20, 5

	var firstWrites atomic.Int64
	var wg sync.WaitGroup
	for i := range people {
		for range tapsEach {
			wg.Go(func() {
				already, err := s.ledger.RecordPresence(s.ctx, key, pseudo(i), models.StatusOnTime)
				s.NoError(err)
				if !already {
					firstWrites.Add(1)
				}
			})
		}
	}
	wg.Wait()

	s.Equal(int64(people), firstWrites.Load(), "exactly one writer per pseudonym wins")
	snap, err := s.ledger.Snapshot(s.ctx, key)
	s.Require().NoError(err)
	s.Len(snap, people)
}

func (s *ledgerContractSuite) TestLocker() {
	if s.locker == nil {
		s.T().Skip("backend has no locker")
	}

	s.Run("serialises holders of one session", func() {
		key := s.freshKey()
		var inside, maxInside atomic.Int64
		var wg sync.WaitGroup
		for range 8 {
			wg.Go(func() {
				unlock, err := s.locker.Lock(s.ctx, key)
				if !s.NoError(err) {
					return
				}
				defer unlock()
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
			})
		}
		wg.Wait()
		s.Equal(int64(1), maxInside.Load())
	})

	s.Run("waiter gives up when context ends", func() {
		key := s.freshKey()
		unlock, err := s.locker.Lock(s.ctx, key)
		s.Require().NoError(err)
		defer unlock()

		ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
		defer cancel()
		_, err = s.locker.Lock(ctx, key)
		s.Error(err)
	})

	s.Run("different sessions do not contend", func() {
		unlockA, err := s.locker.Lock(s.ctx, s.freshKey())
		s.Require().NoError(err)
		defer unlockA()

		ctx, cancel := context.WithTimeout(s.ctx, time.Second)
		defer cancel()
		unlockB, err := s.locker.Lock(ctx, s.freshKey())
		s.Require().NoError(err)
		unlockB()
	})

	s.Run("unlock is idempotent", func() {
		key := s.freshKey()
		unlock, err := s.locker.Lock(s.ctx, key)
		s.Require().NoError(err)
		unlock()
		unlock()

		ctx, cancel := context.WithTimeout(s.ctx, time.Second)
		defer cancel()
		again, err := s.locker.Lock(ctx, key)
		s.Require().NoError(err)
		again()
	})
}
