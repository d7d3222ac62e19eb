// Package httpapi assembles the public HTTP surface: the shared middleware
// chain, operational endpoints and the domain handlers.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tally/pkg/platform/middleware/metadata"
	request "tally/pkg/platform/middleware/request"
	"tally/pkg/platform/middleware/requesttime"
)

// Registrar mounts its routes on a router.
type Registrar interface {
	Register(r chi.Router)
}

type RouterConfig struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Latency        request.LatencyObserver
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
	Health  *HealthHandler
	// Now is the request clock; defaults to time.Now.
	Now func() time.Time
}

// NewRouter wires the middleware chain and mounts every handler. Operational
// endpoints skip the JSON content type and timeout middleware.
func NewRouter(cfg RouterConfig, handlers ...Registrar) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.MiddlewareWithClock(now))
	r.Use(request.Logger(cfg.Logger))

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.ServeHTTP)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		r.Use(request.ContentTypeJSON)
		if cfg.Latency != nil {
			r.Use(request.Latency(cfg.Latency))
		}
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return r
}
