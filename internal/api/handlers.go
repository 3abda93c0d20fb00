package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready only when the database answers. A scrape can run
// without the debug server, but the debug server is useless without the
// store behind it.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.reader.Ping(ctx); err != nil {
		s.logger.Warn("readiness ping failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// listRuns handles GET /v1/runs?limit=. It returns {"runs": [...]} newest
// first, 400 for an invalid limit, 503 when the store is missing, or 500
// when the query fails.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	runs, err := s.reader.RecentRuns(ctx, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

// getStats handles GET /v1/stats: total persisted notices and a per-type
// breakdown.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	stats, err := s.reader.Stats(ctx)
	if err != nil {
		s.logger.Error("load stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	byType := make(map[string]int64, len(stats.ByType))
	for cat, n := range stats.ByType {
		byType[string(cat)] = n
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":   stats.Total,
		"by_type": byType,
	})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func toRunDTOs(in []store.RunRecord) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		dto := runDTO{
			ID:        run.ID.String(),
			Category:  string(run.Category),
			StartedAt: run.StartedAt,
			Status:    string(run.Status),
			Succeeded: run.Succeeded,
			Fallback:  run.Fallback,
			Failed:    run.Failed,
		}
		if run.FinishedAt != nil {
			dto.FinishedAt = run.FinishedAt
		}
		if run.ErrorText != nil {
			dto.Error = run.ErrorText
		}
		out = append(out, dto)
	}
	return out
}

type runDTO struct {
	ID         string     `json:"id"`
	Category   string     `json:"category"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Succeeded  int        `json:"succeeded"`
	Fallback   int        `json:"fallback"`
	Failed     int        `json:"failed"`
	Error      *string    `json:"error,omitempty"`
}
