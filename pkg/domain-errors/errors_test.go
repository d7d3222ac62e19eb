package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodePublishFailed, "publish attendance record")

	require.ErrorIs(t, err, cause)
	assert.True(t, Is(err, CodePublishFailed))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHasCodeWalksNestedErrors(t *testing.T) {
	inner := New(CodeNotFound, "session not found")
	outer := Wrap(fmt.Errorf("lookup: %w", inner), CodeInternal, "close session")

	assert.True(t, HasCode(outer, CodeNotFound))
	assert.True(t, HasCode(outer, CodeInternal))
	assert.False(t, Is(outer, CodeNotFound), "Is only inspects the outermost domain error")
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "bad")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:    http.StatusBadRequest,
		CodeBadRequest:    http.StatusBadRequest,
		CodeNotFound:      http.StatusNotFound,
		CodePublishFailed: http.StatusBadGateway,
		CodeUnauthorized:  http.StatusUnauthorized,
		CodeForbidden:     http.StatusForbidden,
		CodeUnavailable:   http.StatusServiceUnavailable,
		CodeInternal:      http.StatusInternalServerError,
		Code("unknown"):   http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}

func TestErrorsIsMatchesCodeAndMessage(t *testing.T) {
	err := fmt.Errorf("verify: %w", New(CodeUnauthorized, "token has expired"))

	assert.ErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
	assert.ErrorIs(t, err, &Error{Code: CodeUnauthorized})
	assert.NotErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
	assert.NotErrorIs(t, err, New(CodeForbidden, "token has expired"))
}
