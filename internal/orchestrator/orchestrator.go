// Package orchestrator drives the category state machine: listing discovery
// first, then resolve, extract, normalize, and persist for every entry. A
// listing failure kills its category; an entry failure kills only the entry.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/normalize"
	"github.com/regwatch/fda-notice-scraper/internal/notices"
	"github.com/regwatch/fda-notice-scraper/internal/progress"
)

// BrowserFactory hands out a fresh browser. Each category run owns its
// browser exclusively and closes it when the category finishes.
type BrowserFactory func(ctx context.Context) (notices.Browser, error)

// Discoverer walks one listing page into entry stubs.
type Discoverer interface {
	Discover(ctx context.Context, b notices.Browser, cat notices.Category, listingURL string) ([]notices.EntryStub, error)
}

// Resolver secures the local PDF artifact for one entry.
type Resolver interface {
	Resolve(ctx context.Context, b notices.Browser, stub notices.EntryStub) (notices.Artifact, error)
}

// Config controls a batch run.
type Config struct {
	// Listings maps each category to the listing pages to walk, in order.
	Listings map[notices.Category][]string
	// Topic is the Pub/Sub topic for persisted-notice notifications;
	// empty disables publishing.
	Topic string
	// Concurrent runs categories in parallel instead of in listing order.
	Concurrent bool
}

// Notification is the message published after a notice is persisted.
type Notification struct {
	RunID     string `json:"run_id"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url,omitempty"`
	PDFPath   string `json:"pdf_path"`
	Artifact  string `json:"artifact"`
}

// Orchestrator executes category runs over injected pipeline stages.
type Orchestrator struct {
	browsers  BrowserFactory
	discover  Discoverer
	resolve   Resolver
	extract   notices.TextExtractor
	records   notices.RecordStore
	publisher notices.Publisher
	emitter   progress.Emitter
	ids       notices.IDGenerator
	clock     notices.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. Publisher and emitter may be nil; every
// other dependency is required.
func New(
	browsers BrowserFactory,
	discover Discoverer,
	resolve Resolver,
	extract notices.TextExtractor,
	records notices.RecordStore,
	publisher notices.Publisher,
	emitter progress.Emitter,
	ids notices.IDGenerator,
	clock notices.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browsers:  browsers,
		discover:  discover,
		resolve:   resolve,
		extract:   extract,
		records:   records,
		publisher: publisher,
		emitter:   emitter,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes the requested categories and returns one summary per
// category, in argument order. Category failures are reported in the
// summaries, never as the error; the error covers setup problems only.
func (o *Orchestrator) Run(ctx context.Context, categories []notices.Category) ([]notices.CategorySummary, error) {
	if o.browsers == nil || o.discover == nil || o.resolve == nil || o.extract == nil || o.records == nil {
		return nil, fmt.Errorf("orchestrator is missing a pipeline stage")
	}
	if o.clock == nil {
		return nil, fmt.Errorf("orchestrator needs a clock")
	}
	summaries := make([]notices.CategorySummary, len(categories))
	if o.cfg.Concurrent {
		var wg sync.WaitGroup
		for i, cat := range categories {
			wg.Add(1)
			go func(i int, cat notices.Category) {
				defer wg.Done()
				summaries[i] = o.runCategory(ctx, cat)
			}(i, cat)
		}
		wg.Wait()
	} else {
		for i, cat := range categories {
			summaries[i] = o.runCategory(ctx, cat)
		}
	}
	return summaries, nil
}

func (o *Orchestrator) runCategory(ctx context.Context, cat notices.Category) notices.CategorySummary {
	runID := o.newRunID()
	started := o.clock.Now()
	sum := notices.CategorySummary{
		Category: cat,
		Status:   notices.RunCompleted,
		Started:  started,
	}
	o.emit(progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       started,
		Stage:    progress.StageRunStart,
		Category: cat,
	})
	o.logger.Info("category run started",
		zap.String("category", string(cat)),
		zap.String("run_id", runID.String()))

	err := o.walkCategory(ctx, cat, runID, &sum)
	sum.Finished = o.clock.Now()

	evt := progress.Event{
		RunID:     progress.UUIDToBytes(runID),
		TS:        sum.Finished,
		Stage:     progress.StageRunDone,
		Category:  cat,
		Dur:       sum.Finished.Sub(started),
		Succeeded: sum.Succeeded,
		Fallback:  sum.Fallback,
		Failed:    sum.Failed,
	}
	if err != nil {
		sum.Status = notices.RunFailed
		sum.ErrorText = err.Error()
		evt.Stage = progress.StageRunFailed
		evt.Note = sum.ErrorText
		o.emit(evt)
		o.logger.Error("category run failed",
			zap.String("category", string(cat)),
			zap.Error(err))
		return sum
	}
	o.emit(evt)
	o.logger.Info("category run finished",
		zap.String("category", string(cat)),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("fallback", sum.Fallback),
		zap.Int("failed", sum.Failed))
	return sum
}

// walkCategory owns the browser for the whole category. Any listing problem
// is returned and fails the category; a partial listing must never pass as
// complete.
func (o *Orchestrator) walkCategory(ctx context.Context, cat notices.Category, runID uuid.UUID, sum *notices.CategorySummary) error {
	urls := o.cfg.Listings[cat]
	if len(urls) == 0 {
		return fmt.Errorf("no listing pages configured for %s", cat)
	}

	b, err := o.browsers(ctx)
	if err != nil {
		return fmt.Errorf("acquire browser: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			o.logger.Warn("browser close failed",
				zap.String("category", string(cat)),
				zap.Error(cerr))
		}
	}()

	var stubs []notices.EntryStub
	for _, u := range urls {
		found, err := o.discover.Discover(ctx, b, cat, u)
		if err != nil {
			return err
		}
		stubs = append(stubs, found...)
	}

	for _, stub := range stubs {
		if ctx.Err() != nil {
			return fmt.Errorf("category %s interrupted: %w", cat, ctx.Err())
		}
		o.processEntry(ctx, b, stub, runID, sum)
	}
	return nil
}

// processEntry runs one entry through resolve, extract, normalize, and
// persist. Failures are counted and logged; they never escape to the
// category.
func (o *Orchestrator) processEntry(ctx context.Context, b notices.Browser, stub notices.EntryStub, runID uuid.UUID, sum *notices.CategorySummary) {
	entryStarted := o.clock.Now()

	art, err := o.resolve.Resolve(ctx, b, stub)
	if err != nil {
		o.failEntry(stub, runID, sum, entryStarted, fmt.Errorf("resolve: %w", err))
		return
	}
	o.emit(progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       o.clock.Now(),
		Stage:    progress.StageEntryResolved,
		Category: stub.Category,
		Title:    stub.Title,
		Artifact: art.Kind,
	})

	text, err := o.extract.Extract(ctx, art.LocalPath)
	if err != nil {
		o.failEntry(stub, runID, sum, entryStarted, fmt.Errorf("extract: %w", err))
		return
	}
	o.emit(progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       o.clock.Now(),
		Stage:    progress.StageEntryExtracted,
		Category: stub.Category,
		Title:    stub.Title,
		Method:   text.Method,
		Chars:    text.Length(),
	})

	rec := normalize.Build(stub, art, text)
	if err := o.records.Upsert(ctx, rec); err != nil {
		o.failEntry(stub, runID, sum, entryStarted, fmt.Errorf("persist: %w", err))
		return
	}

	if art.Kind == notices.ArtifactFallback {
		sum.Fallback++
	} else {
		sum.Succeeded++
	}
	o.emit(progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       o.clock.Now(),
		Stage:    progress.StageEntryPersisted,
		Category: stub.Category,
		Title:    stub.Title,
		Dur:      o.clock.Now().Sub(entryStarted),
	})
	o.publishNotice(ctx, runID, rec, art)
}

func (o *Orchestrator) failEntry(stub notices.EntryStub, runID uuid.UUID, sum *notices.CategorySummary, started time.Time, err error) {
	sum.Failed++
	now := o.clock.Now()
	o.emit(progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       now,
		Stage:    progress.StageEntryFailed,
		Category: stub.Category,
		Title:    stub.Title,
		Dur:      now.Sub(started),
		Note:     err.Error(),
	})
	o.logger.Error("entry failed",
		zap.String("category", string(stub.Category)),
		zap.String("title", stub.Title),
		zap.Error(err))
}

// publishNotice is best effort. A broken broker must not cost us a notice
// that is already safely in the database.
func (o *Orchestrator) publishNotice(ctx context.Context, runID uuid.UUID, rec notices.Record, art notices.Artifact) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	msg := Notification{
		RunID:    runID.String(),
		Category: string(rec.Type),
		Title:    rec.Title(),
		PDFPath:  rec.PDFPath,
		Artifact: string(art.Kind),
	}
	if rec.SourceURL != nil {
		msg.SourceURL = *rec.SourceURL
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, msg); err != nil {
		o.logger.Warn("notice publish failed",
			zap.String("title", msg.Title),
			zap.Error(err))
	}
}

func (o *Orchestrator) newRunID() uuid.UUID {
	if o.ids != nil {
		if raw, err := o.ids.NewID(); err == nil {
			if id, perr := uuid.Parse(raw); perr == nil {
				return id
			}
		}
	}
	return uuid.New()
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}
