package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/progress"
)

// LogSink renders progress events as structured logs. Run milestones log at
// Info; the per-entry stream stays at Debug so it only shows up when the
// scraper runs verbose.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("category", string(evt.Category)),
		}
		if evt.Title != "" {
			fields = append(fields, zap.String("title", evt.Title))
		}
		if evt.Artifact != "" {
			fields = append(fields, zap.String("artifact", string(evt.Artifact)))
		}
		if evt.Method != "" {
			fields = append(fields,
				zap.String("method", string(evt.Method)),
				zap.Int("chars", evt.Chars))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("category run started", fields...)
		case progress.StageRunDone, progress.StageRunFailed:
			fields = append(fields,
				zap.Int("succeeded", evt.Succeeded),
				zap.Int("fallback", evt.Fallback),
				zap.Int("failed", evt.Failed))
			s.logger.Info("category run finished", fields...)
		default:
			s.logger.Debug("entry progress", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
