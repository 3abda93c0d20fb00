package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/regwatch/fda-notice-scraper/internal/progress"
)

// PrometheusSink exports scraper progress via Prometheus. It owns the
// collectors for run lifecycle, artifact provenance, and extraction outcomes.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	entries       *prometheus.CounterVec
	artifacts     *prometheus.CounterVec
	extractions   *prometheus.CounterVec
	entryDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Category runs started.",
		}, []string{"category"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_completed_total",
			Help: "Category runs finished, partitioned by terminal status.",
		}, []string{"category", "status"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_runs_active",
			Help: "Category runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_run_duration_seconds",
			Help:    "Wall time per finished category run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"category"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_entries_total",
			Help: "Listing entries processed, partitioned by outcome.",
		}, []string{"category", "outcome"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_artifacts_total",
			Help: "PDF artifacts secured, partitioned by provenance.",
		}, []string{"category", "kind"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_extractions_total",
			Help: "Text extractions, partitioned by winning method.",
		}, []string{"method"}),
		entryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_entry_duration_seconds",
			Help:    "Per-entry pipeline latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"category"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.entries,
		s.artifacts,
		s.extractions,
		s.entryDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent
// use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	category := string(evt.Category)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(category).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone, progress.StageRunFailed:
		status := "completed"
		if evt.Stage == progress.StageRunFailed {
			status = "failed"
		}
		s.runsCompleted.WithLabelValues(category, status).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(category).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsActive.Dec()
		}
	case progress.StageEntryResolved:
		s.artifacts.WithLabelValues(category, string(evt.Artifact)).Inc()
	case progress.StageEntryExtracted:
		s.extractions.WithLabelValues(string(evt.Method)).Inc()
	case progress.StageEntryPersisted:
		s.entries.WithLabelValues(category, "persisted").Inc()
		s.observeEntry(evt, category)
	case progress.StageEntryFailed:
		s.entries.WithLabelValues(category, "failed").Inc()
		s.observeEntry(evt, category)
	}
}

func (s *PrometheusSink) observeEntry(evt progress.Event, category string) {
	if evt.Dur > 0 {
		s.entryDuration.WithLabelValues(category).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker keeps the active gauge honest when terminal events repeat.
type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
