package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
	"github.com/regwatch/fda-notice-scraper/internal/progress"
)

// RunLedger records category runs durably. *store.Store satisfies it.
type RunLedger interface {
	StartRun(ctx context.Context, id uuid.UUID, category notices.Category, startedAt time.Time) error
	FinishRun(ctx context.Context, id uuid.UUID, sum notices.CategorySummary) error
}

// StoreSink writes run lifecycle events into the ledger. Entry-level events
// are deliberately skipped; per-entry noise stays out of the database.
type StoreSink struct {
	ledger RunLedger
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink over the provided ledger.
func NewStoreSink(ledger RunLedger, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{ledger: ledger, logger: logger}
}

// Consume forwards run milestones to the ledger. It respects ctx deadlines
// and surfaces ledger errors to the hub.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.ledger == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.ledger.StartRun(ctx, evt.RunUUID(), evt.Category, evt.TS); err != nil {
				return fmt.Errorf("ledger run start: %w", err)
			}
		case progress.StageRunDone, progress.StageRunFailed:
			if err := s.ledger.FinishRun(ctx, evt.RunUUID(), evt.Summary()); err != nil {
				return fmt.Errorf("ledger run finish: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
