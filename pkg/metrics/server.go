package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the Prometheus /metrics endpoint over HTTP.
type Server struct {
	httpServer *http.Server
}

// InitializeMetrics creates the process-wide registry when enabled is
// true and returns a Server bound to addr (host:port) with a /metrics
// handler, ready for the caller to Start. It returns nil when metrics
// are disabled, so callers can treat a nil *Server as "nothing to do".
func InitializeMetrics(enabled bool, port int) *Server {
	if !enabled {
		return nil
	}

	reg := InitRegistry()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start begins serving /metrics in the background. Listen errors other
// than a clean shutdown are sent to errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
