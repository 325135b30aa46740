// Package monitor serves the run's observability surface: health, metrics,
// live status, the best trial, and a CSV export of the trail.
package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/BOREAL/internal/errors"
	"github.com/copyleftdev/BOREAL/internal/hyperopt"
	"github.com/copyleftdev/BOREAL/internal/logging"
	"github.com/copyleftdev/BOREAL/internal/metrics"
	"github.com/copyleftdev/BOREAL/internal/report"
)

// Server exposes a running search over HTTP. It only reads coordinator
// state; nothing here mutates the run.
type Server struct {
	coord      *hyperopt.Coordinator
	met        *metrics.Set
	paramNames []string
	logger     *logging.Logger
}

// NewServer creates a monitor for the given coordinator.
func NewServer(coord *hyperopt.Coordinator, met *metrics.Set, paramNames []string, logger *logging.Logger) *Server {
	return &Server{
		coord:      coord,
		met:        met,
		paramNames: paramNames,
		logger:     logger,
	}
}

// Handler builds the monitor's HTTP stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.logger))
	r.Use(errors.RecoveryMiddleware(s.logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.met.Registry(), promhttp.HandlerOpts{}))
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API endpoints on an existing router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/best", s.handleBest)
		r.Get("/trials.csv", s.handleTrialsCSV)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.coord.Status())
}

func (s *Server) handleBest(w http.ResponseWriter, _ *http.Request) {
	best, ok := s.coord.Best()
	if !ok {
		s.respondJSON(w, http.StatusNotFound, map[string]string{
			"error": report.NoEpochsMessage,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"epoch":   best.Epoch,
		"loss":    best.Loss,
		"params":  best.Params,
		"metrics": best.Metrics,
	})
}

func (s *Server) handleTrialsCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trials.csv"`)
	if err := report.WriteCSV(w, s.coord.Trials(), s.paramNames); err != nil {
		s.logger.Error("csv export failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// ListenAndServe runs the monitor until the server is shut down externally.
func (s *Server) ListenAndServe(port int) *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		s.logger.Info("monitor listening", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("monitor server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return srv
}
