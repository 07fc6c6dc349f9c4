package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer owns the gateway's listener lifecycle: a timeout-configured
// http.Server and a shutdown that drains in-flight requests.
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer builds the server for the configured port. Header reads get
// a fixed 5s budget so idle connections cannot hold a slot while the body
// timeouts stay operator-tunable.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start serves until the listener fails or Shutdown is called. A clean
// shutdown is reported as nil rather than http.ErrServerClosed.
func (s *HTTPServer) Start() error {
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
