// Package dashboard serves the read-only snapshot API consumed by the
// monitoring dashboard. Every endpoint returns a point-in-time copy of agent
// state; nothing here mutates the agent or touches the remote collector.
package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/beacon-agent/internal/agent"
	"github.com/tjfontaine/beacon-agent/internal/capture"
	"github.com/tjfontaine/beacon-agent/internal/record"
	"github.com/tjfontaine/beacon-agent/internal/vitals"
)

// Snapshot is the slice of the agent the dashboard reads. Satisfied by
// *agent.Agent; tests substitute a fake.
type Snapshot interface {
	MetricsSummary() map[string]vitals.Summary
	ErrorStats() capture.Stats
	PagePerformance() map[string]float64
	Breadcrumbs() []record.Breadcrumb
	Status() agent.Status
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	agent  Snapshot
}

func New(snapshot Snapshot, port int, logger *slog.Logger) *Server {
	s := &Server{
		Port:   port,
		logger: logger,
		agent:  snapshot,
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "beacon-dashboard")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/metrics-summary", s.handleMetricsSummary)
	r.Get("/api/error-stats", s.handleErrorStats)
	r.Get("/api/page-performance", s.handlePagePerformance)
	r.Get("/api/breadcrumbs", s.handleBreadcrumbs)

	s.Router = r
	return s
}

func (s *Server) Start() error {
	s.logger.Info("starting dashboard server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Status())
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.MetricsSummary())
}

func (s *Server) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.ErrorStats())
}

func (s *Server) handlePagePerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.PagePerformance())
}

func (s *Server) handleBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Breadcrumbs())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing to do but note it
		slog.Debug("failed to encode dashboard response", slog.String("error", err.Error()))
	}
}
