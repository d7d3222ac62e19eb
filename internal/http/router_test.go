package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/pkg/requestcontext"
)

type echoRegistrar struct{}

func (echoRegistrar) Register(r chi.Router) {
	r.Post("/v1/echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, requestcontext.Now(r.Context()).Format(time.RFC3339))
	})
}

type countingObserver struct{ routes []string }

func (c *countingObserver) ObserveHTTPRequest(route, _ string, _ int, _ time.Duration) {
	c.routes = append(c.routes, route)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouterMountsHandlersBehindJSONGuard(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	obs := &countingObserver{}
	router := NewRouter(RouterConfig{
		Logger:         discardLogger(),
		RequestTimeout: time.Second,
		Latency:        obs,
		Now:            func() time.Time { return fixed },
	}, echoRegistrar{})

	req := httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-02T09:00:00Z", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"/v1/echo"}, obs.routes)

	req = httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader(`x`))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterServesMetrics(t *testing.T) {
	router := NewRouter(RouterConfig{
		Logger: discardLogger(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "metrics")
		}),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestHealthHandler(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		h := NewHealthHandler(discardLogger(), 0)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing dependency", func(t *testing.T) {
		h := NewHealthHandler(discardLogger(), time.Second)
		h.AddCheck("redis", func(context.Context) error { return nil })
		h.AddCheck("postgres", func(context.Context) error { return errors.New("connection refused") })

		router := NewRouter(RouterConfig{Logger: discardLogger(), Health: h})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, map[string]string{"redis": "ok", "postgres": "unavailable"}, resp.Checks)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}
