package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server. Write timeout leaves room past the request
// timeout so the timeout middleware can still write its response.
func New(addr string, handler http.Handler, requestTimeout, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
