package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobradar/jobradar/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	defaultJobLimit = 100
	maxJobLimit     = 1000
)

// listCrawlRuns handles GET /v1/runs?platform=&limit=&offset=. It returns
// {"runs": [...]} on success, 400 for invalid query parameters, or 500 when
// the ledger call fails.
func (s *Server) listCrawlRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	platform := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform")))

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	runs, err := s.runs.ListCrawlRuns(ctx, platform, limit, offset)
	if err != nil {
		s.logger.Error("list crawl runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list crawl runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// getCrawlRun handles GET /v1/runs/{run_id}. The response carries the run
// plus its search runs: {"run": {...}, "search_runs": [...]}.
func (s *Server) getCrawlRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	run, err := s.runs.GetCrawlRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl run not found")
			return
		}
		s.logger.Error("get crawl run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load crawl run")
		return
	}
	searchRuns, err := s.runs.ListSearchRuns(ctx, runID)
	if err != nil {
		s.logger.Error("list search runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list search runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "search_runs": searchRuns})
}

// listJobs handles GET /v1/jobs?platform=&active=&limit=&offset=. The
// platform filter is required; active defaults to true.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform")))
	if platform == "" {
		writeError(w, http.StatusBadRequest, "platform is required")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	activeOnly := true
	if activeStr := r.URL.Query().Get("active"); activeStr != "" {
		activeOnly, err = strconv.ParseBool(activeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	jobs, err := s.jobs.ListJobs(ctx, platform, activeOnly, limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// listDetailCandidates handles GET /v1/jobs/detail-candidates?platform=&days=&limit=.
// It selects jobs whose detail row is missing or older than the staleness
// window, oldest details first, for the detail-fetch catchup pass.
func (s *Server) listDetailCandidates(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform")))
	if platform == "" {
		writeError(w, http.StatusBadRequest, "platform is required")
		return
	}
	limit, _, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days := s.detailDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		days, err = strconv.Atoi(daysStr)
		if err != nil || days <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	jobs, err := s.jobs.ListDetailCandidates(ctx, platform, days, limit)
	if err != nil {
		s.logger.Error("list detail candidates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list detail candidates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// listLifecycleRuns handles GET /v1/lifecycle/runs?limit=&offset=.
func (s *Server) listLifecycleRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	runs, err := s.lifecycle.ListRuns(ctx, limit, offset)
	if err != nil {
		s.logger.Error("list lifecycle runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list lifecycle runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	runIDStr := chi.URLParam(r, "run_id")
	if runIDStr == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
