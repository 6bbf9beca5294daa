// Package server is the REST front door: submission, polling, result
// retrieval, health, and the Prometheus scrape endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/jobs"
)

// HealthChecker reports component status for the health endpoint.
type HealthChecker func(ctx context.Context) map[string]string

// Server wraps the HTTP front door.
type Server struct {
	cfg    config.ServerConfig
	jobs   *jobs.Manager
	health HealthChecker
	http   *http.Server
	log    *slog.Logger
}

// New builds the server. health may be nil.
func New(cfg config.ServerConfig, manager *jobs.Manager, metricsEnabled bool, health HealthChecker) *Server {
	s := &Server{
		cfg:    cfg,
		jobs:   manager,
		health: health,
		log:    slog.With("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleSubmit)
		r.Get("/query/{jobID}", s.handleGet)
		r.Get("/query/{jobID}/result", s.handleResult)
		r.Delete("/query/{jobID}", s.handleCancel)
		r.Get("/health", s.handleHealth)
	})
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.http = &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled, then drains within the
// configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "address", s.cfg.Address())
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	return s.http.Shutdown(shutdownCtx)
}
