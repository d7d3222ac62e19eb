//go:build integration

package roster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"tally/internal/platform/postgres"
	"tally/pkg/platform/sentinel"
	"tally/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.pg.DB))
	s.store = NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) TestImportThenLookup() {
	ctx := context.Background()
	seed, err := ParseSeed([]byte(seedYAML))
	s.Require().NoError(err)

	s.Require().NoError(s.store.Import(ctx, seed))
	s.Require().NoError(s.store.Import(ctx, seed), "import is an upsert")

	sess, err := s.store.Session(ctx, "CS101", "2026-03-02")
	s.Require().NoError(err)
	s.Equal("2026-03-02T09:00:00Z", sess.StartISO)
	s.Equal(10, sess.ToleranceMinutes)

	entries, err := s.store.Roster(ctx, "CS101")
	s.Require().NoError(err)
	s.Equal([]Entry{
		{StudentID: "s-001", RawIdentityToken: "card-A"},
		{StudentID: "s-002", RawIdentityToken: "card-B"},
	}, entries)

	entries, err = s.store.Roster(ctx, "EMPTY")
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *PostgresStoreSuite) TestUnknownKeys() {
	ctx := context.Background()
	_, err := s.store.Session(ctx, "NOPE", "x")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Roster(ctx, "NOPE")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
