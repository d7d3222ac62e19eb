package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "tally/pkg/domain"
	"tally/pkg/platform/sentinel"
)

const seedYAML = `
classes:
  - class_id: CS101
    roster:
      - student_id: s-001
        token: card-A
      - student_id: s-002
        token: card-B
    sessions:
      - session_id: "2026-03-02"
        start: "2026-03-02T09:00:00Z"
        tolerance_minutes: 10
      - session_id: "2026-03-04"
        start: "2026-03-04T09:00:00Z"
  - class_id: EMPTY
    sessions:
      - session_id: s1
        start: "2026-03-02T09:00:00Z"
`

func TestParseSeed(t *testing.T) {
	t.Run("valid seed", func(t *testing.T) {
		seed, err := ParseSeed([]byte(seedYAML))
		require.NoError(t, err)
		require.Len(t, seed.Classes, 2)
		assert.Equal(t, "CS101", seed.Classes[0].ClassID)
	})

	tests := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", "classes: ["},
		{"bad class id", "classes:\n  - class_id: \"a:b\"\n"},
		{"duplicate class", "classes:\n  - class_id: A\n  - class_id: A\n"},
		{"missing token", "classes:\n  - class_id: A\n    roster:\n      - student_id: s1\n"},
		{"bad start", "classes:\n  - class_id: A\n    sessions:\n      - session_id: s1\n        start: tomorrow\n"},
		{"negative tolerance", "classes:\n  - class_id: A\n    sessions:\n      - session_id: s1\n        start: \"2026-03-02T09:00:00Z\"\n        tolerance_minutes: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestInMemoryStoreFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	store, err := LoadFile(path)
	require.NoError(t, err)
	ctx := context.Background()

	sess, err := store.Session(ctx, "CS101", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02T09:00:00Z", sess.StartISO)
	assert.Equal(t, 10, sess.ToleranceMinutes)

	sess, err = store.Session(ctx, "CS101", "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, DefaultToleranceMinutes, sess.ToleranceMinutes)

	entries, err := store.Roster(ctx, "CS101")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{StudentID: "s-001", RawIdentityToken: "card-A"},
		{StudentID: "s-002", RawIdentityToken: "card-B"},
	}, entries)

	entries, err = store.Roster(ctx, "EMPTY")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.Session(ctx, "CS101", "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.Roster(ctx, "MISSING")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRosterReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	store.PutRoster("C", []Entry{{StudentID: "s1", RawIdentityToken: "t1"}})

	entries, err := store.Roster(context.Background(), "C")
	require.NoError(t, err)
	entries[0].RawIdentityToken = "mutated"

	again, err := store.Roster(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, "t1", again[0].RawIdentityToken)
}

func TestDedupe(t *testing.T) {
	in := []Entry{
		{StudentID: "a", RawIdentityToken: "t1"},
		{StudentID: "a", RawIdentityToken: "t2"},
		{StudentID: "b", RawIdentityToken: "t1"},
		{StudentID: "c", RawIdentityToken: "t3"},
	}
	kept, conflicts := Dedupe(in)
	assert.Equal(t, []Entry{
		{StudentID: "a", RawIdentityToken: "t1"},
		{StudentID: "c", RawIdentityToken: "t3"},
	}, kept)
	assert.Equal(t, []Entry{{StudentID: "b", RawIdentityToken: "t1"}}, conflicts,
		"a repeated student is not a conflict, a shared token is")

	kept, conflicts = Dedupe(nil)
	assert.Empty(t, kept)
	assert.Empty(t, conflicts)
}

func TestClassSessionStart(t *testing.T) {
	sess := ClassSession{ClassID: id.ClassID("C"), SessionID: "s", StartISO: "2026-03-02T09:00:00+01:00"}
	start, err := sess.Start()
	require.NoError(t, err)
	assert.Equal(t, 8, start.UTC().Hour())

	sess.StartISO = "nope"
	_, err = sess.Start()
	assert.Error(t, err)
}
