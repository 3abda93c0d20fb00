package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
	"github.com/regwatch/fda-notice-scraper/internal/progress"
)

// TestPrometheusSinkRecordsMetrics walks one entry through a run and checks
// every collector family it should touch.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Category: notices.CategoryRecall},
		{
			RunID:    runID,
			TS:       now.Add(2 * time.Second),
			Stage:    progress.StageEntryResolved,
			Category: notices.CategoryRecall,
			Title:    "Mama's Choice Syrup",
			Artifact: notices.ArtifactDownloaded,
		},
		{
			RunID:    runID,
			TS:       now.Add(3 * time.Second),
			Stage:    progress.StageEntryExtracted,
			Category: notices.CategoryRecall,
			Method:   notices.ExtractionOCR,
			Chars:    2048,
		},
		{
			RunID:    runID,
			TS:       now.Add(4 * time.Second),
			Stage:    progress.StageEntryPersisted,
			Category: notices.CategoryRecall,
			Dur:      4 * time.Second,
		},
		{
			RunID:     runID,
			TS:        now.Add(10 * time.Second),
			Stage:     progress.StageRunDone,
			Category:  notices.CategoryRecall,
			Dur:       10 * time.Second,
			Succeeded: 1,
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("recall")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("recall", "completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("recall", "failed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.artifacts.WithLabelValues("recall", "downloaded")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.extractions.WithLabelValues("ocr")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.entries.WithLabelValues("recall", "persisted")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.entryDuration, "scraper_entry_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "scraper_run_duration_seconds"))
}

// TestPrometheusSinkTracksActiveRuns ensures repeated terminal events cannot
// push the active gauge negative.
func TestPrometheusSinkTracksActiveRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	start := progress.Event{RunID: runID, TS: now, Stage: progress.StageRunStart, Category: notices.CategoryAlert}
	fail := progress.Event{
		RunID:    runID,
		TS:       now.Add(time.Second),
		Stage:    progress.StageRunFailed,
		Category: notices.CategoryAlert,
		Note:     "listing fetch failed",
	}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{fail, fail}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("alert", "failed")))
}
