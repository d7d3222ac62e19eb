package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tally/pkg/domain-errors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		describe string
	}{
		{"internal hides description", dErrors.New(dErrors.CodeInternal, "db failed"), http.StatusInternalServerError, "internal_error", ""},
		{"unavailable hides description", dErrors.New(dErrors.CodeUnavailable, "redis: connection refused"), http.StatusServiceUnavailable, "unavailable", ""},
		{"validation shows description", dErrors.New(dErrors.CodeValidation, "class_id is required"), http.StatusBadRequest, "validation_error", "class_id is required"},
		{"not found shows description", dErrors.New(dErrors.CodeNotFound, "class session not found"), http.StatusNotFound, "not_found", "class session not found"},
		{"plain error is internal", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Error)
			assert.Equal(t, tt.describe, body.ErrorDescription)
		})
	}
}

type closeRequest struct {
	ClassID string `json:"class_id"`
}

func (r *closeRequest) Validate() error {
	r.ClassID = strings.TrimSpace(r.ClassID)
	if r.ClassID == "" {
		return dErrors.New(dErrors.CodeValidation, "class_id is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decode := func(body string) (*closeRequest, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/close", strings.NewReader(body))
		out, _ := DecodeAndPrepare[closeRequest](rec, req, logger, req.Context(), "req-1")
		return out, rec
	}

	t.Run("valid body is normalised", func(t *testing.T) {
		out, rec := decode(`{"class_id":" CS101 "}`)
		require.NotNil(t, out)
		assert.Equal(t, "CS101", out.ClassID)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		out, rec := decode(``)
		assert.Nil(t, out)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "request body is required", decodeError(t, rec).ErrorDescription)
	})

	t.Run("unknown field", func(t *testing.T) {
		out, rec := decode(`{"class_id":"CS101","student":"s-1"}`)
		assert.Nil(t, out)
		assert.Equal(t, "bad_request", decodeError(t, rec).Error)
	})

	t.Run("validation failure", func(t *testing.T) {
		out, rec := decode(`{"class_id":"  "}`)
		assert.Nil(t, out)
		assert.Equal(t, "validation_error", decodeError(t, rec).Error)
	})
}
