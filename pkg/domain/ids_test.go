package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tally/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant:
// "IDs are non-empty, bounded, trimmed and never contain the key separator"
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseClassID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects key separator", func(t *testing.T) {
		_, err := ParseSessionID("2026:01")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		_, err := ParseStudentID(strings.Repeat("a", MaxIDLength+1))
		require.Error(t, err)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := ParseClassID("  CS101 ")
		require.NoError(t, err)
		assert.Equal(t, ClassID("CS101"), id)
	})
}

// TestParseID_SecurityInvariants validates that parsing rejects attack vectors at
// API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"null byte", "CS101\x00"},
		{"newline injection", "CS101\nX-Injected: 1"},
		{"invalid utf8", string([]byte{0xff, 0xfe})},
		{"redis key injection", "CS101:*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClassID(tt.input)
			assert.Error(t, err)
		})
	}
}
