package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

const runsTable = "scrape_runs"

// RunRecord is one row of the scrape run ledger.
type RunRecord struct {
	ID         uuid.UUID
	Category   notices.Category
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     notices.RunStatus
	Succeeded  int
	Fallback   int
	Failed     int
	ErrorText  *string
}

// StartRun opens a ledger row for a category run. Replayed starts with the
// same id are ignored so a retried orchestrator call cannot duplicate rows.
func (s *Store) StartRun(ctx context.Context, id uuid.UUID, category notices.Category, startedAt time.Time) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	query, args, err := s.builder.Insert(runsTable).SetMap(map[string]any{
		"id":         id.String(),
		"category":   string(category),
		"started_at": startedAt,
		"status":     string(notices.RunRunning),
	}).Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// FinishRun rewrites the ledger row with the run's terminal status and
// counters.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, sum notices.CategorySummary) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	var errText any
	if sum.ErrorText != "" {
		errText = sum.ErrorText
	}
	query, args, err := s.builder.Update(runsTable).SetMap(map[string]any{
		"finished_at":   sum.Finished,
		"status":        string(sum.Status),
		"succeeded":     sum.Succeeded,
		"fallback":      sum.Fallback,
		"failed":        sum.Failed,
		"error_message": errText,
	}).Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return fmt.Errorf("build run update: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// RecentRuns lists ledger rows newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("record store is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	query, args, err := s.builder.
		Select("id", "category", "started_at", "finished_at", "status", "succeeded", "fallback", "failed", "error_message").
		From(runsTable).
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			idStr      string
			category   string
			startedAt  time.Time
			finishedAt *time.Time
			status     string
			succeeded  int
			fallback   int
			failed     int
			errText    *string
		)
		if err := rows.Scan(&idStr, &category, &startedAt, &finishedAt, &status, &succeeded, &fallback, &failed, &errText); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", idStr, err)
		}
		out = append(out, RunRecord{
			ID:         id,
			Category:   notices.Category(category),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Status:     notices.RunStatus(status),
			Succeeded:  succeeded,
			Fallback:   fallback,
			Failed:     failed,
			ErrorText:  errText,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}
