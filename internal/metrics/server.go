package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"firestige.xyz/wifilab/internal/log"
)

// Server is the HTTP server for Prometheus metrics, used while long sweeps run.
type Server struct {
	addr     string
	path     string
	recorder *Recorder
	server   *http.Server
}

// NewServer creates a new metrics server.
func NewServer(addr, path string, recorder *Recorder) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		addr:     addr,
		path:     path,
		recorder: recorder,
	}
}

// Start starts the metrics HTTP server.
func (s *Server) Start(ctx context.Context) error {
	if s.recorder == nil {
		return fmt.Errorf("metrics server needs a recorder")
	}
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.recorder.Registry(), promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger := log.GetLogger().WithFields(map[string]interface{}{"addr": s.addr, "path": s.path})
	logger.Info("starting metrics server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.GetLogger().Info("stopping metrics server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}
