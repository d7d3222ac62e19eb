package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tally/internal/platform/sqlite"
)

type SQLiteLedgerSuite struct {
	ledgerContractSuite
}

func TestSQLiteLedgerSuite(t *testing.T) {
	s := new(SQLiteLedgerSuite)
	s.newLedger = func() Ledger {
		db, err := sqlite.OpenDSN(context.Background(), sqlite.MemoryDSN("ledger_"+uuid.NewString()))
		require.NoError(t, err)
		w := sqlite.NewWorker(db)
		t.Cleanup(func() {
			w.Close()
			db.Close()
		})
		return NewSQLiteLedger(db, w)
	}
	s.newLocker = func() Locker { return NewKeyedLocker() }
	suite.Run(t, s)
}
