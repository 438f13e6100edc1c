// Package api exposes the read-only HTTP interface over the run ledger,
// the job store and the lifecycle ledger.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobradar/jobradar/internal/metrics"
	"github.com/jobradar/jobradar/internal/store"
)

const (
	requestTimeout             = 5 * time.Second
	defaultDetailStalenessDays = 7
)

// Server wires HTTP handlers to the stores.
type Server struct {
	router     chi.Router
	runs       store.RunLedger
	jobs       store.JobStore
	lifecycle  store.MaintenanceLedger
	timeout    time.Duration
	detailDays int
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
// detailStalenessDays is the default age past which a job's detail row
// counts as stale for the catchup endpoint; 0 picks the built-in default.
func NewServer(runs store.RunLedger, jobs store.JobStore, lifecycle store.MaintenanceLedger, detailStalenessDays int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detailStalenessDays <= 0 {
		detailStalenessDays = defaultDetailStalenessDays
	}
	s := &Server{
		runs:       runs,
		jobs:       jobs,
		lifecycle:  lifecycle,
		timeout:    requestTimeout,
		detailDays: detailStalenessDays,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listCrawlRuns)
			r.Get("/{run_id}", s.getCrawlRun)
		})
		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/detail-candidates", s.listDetailCandidates)
		r.Get("/lifecycle/runs", s.listLifecycleRuns)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	// A cheap ledger read proves the database connection is live.
	if _, err := s.lifecycle.ListRuns(ctx, 1, 0); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
