// Package app assembles the scraper's long-lived services into one
// container: logging, the Postgres store, artifact storage, the optional GCS
// mirror and Pub/Sub publisher, the progress hub with its sinks, and the
// debug HTTP server. Commands build an App once and drive it.
package app

import (
	"context"
	"fmt"
	"net/http"

	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/api"
	"github.com/regwatch/fda-notice-scraper/internal/archive"
	"github.com/regwatch/fda-notice-scraper/internal/artifact"
	"github.com/regwatch/fda-notice-scraper/internal/browser"
	"github.com/regwatch/fda-notice-scraper/internal/clock/system"
	"github.com/regwatch/fda-notice-scraper/internal/config"
	"github.com/regwatch/fda-notice-scraper/internal/extract"
	idgen "github.com/regwatch/fda-notice-scraper/internal/id/uuid"
	"github.com/regwatch/fda-notice-scraper/internal/listing"
	"github.com/regwatch/fda-notice-scraper/internal/logging"
	"github.com/regwatch/fda-notice-scraper/internal/notices"
	"github.com/regwatch/fda-notice-scraper/internal/orchestrator"
	"github.com/regwatch/fda-notice-scraper/internal/progress"
	"github.com/regwatch/fda-notice-scraper/internal/progress/sinks"
	gcppublisher "github.com/regwatch/fda-notice-scraper/internal/publisher/pubsub"
	"github.com/regwatch/fda-notice-scraper/internal/resolver"
	"github.com/regwatch/fda-notice-scraper/internal/store"
)

// App holds the shared services for one scraper process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *store.Store
	artifacts *artifact.Store
	gcsClient *gstorage.Client
	publisher notices.Publisher
	pubCloser interface{ Close() error }
	registry  *prometheus.Registry
	hub       *progress.Hub
	orch      *orchestrator.Orchestrator
	api       *api.Server
}

// Build creates the application's dependencies. Nothing network-facing is
// touched except the GCS and Pub/Sub clients when those features are
// enabled; the database pool and the browser connect lazily.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Info("building application dependencies")

	a := &App{cfg: cfg, logger: logger}

	a.store, err = store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN(),
		MaxConns: int32(cfg.DB.MaxConns),
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	a.artifacts, err = artifact.New(cfg.Output.Dir, logger.Named("artifacts"))
	if err != nil {
		return nil, fmt.Errorf("artifact store init failed: %w", err)
	}

	mirror, err := a.setupMirror(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(a.store, logger.Named("ledger")),
	)

	downloader, err := resolver.NewCollyDownloader(resolver.DownloaderConfig{
		UserAgent:  cfg.Site.UserAgent,
		Timeout:    cfg.DownloadTimeout(),
		PerHostRPS: cfg.HTTP.PerHostRPS,
	}, logger.Named("download"))
	if err != nil {
		return nil, fmt.Errorf("downloader init failed: %w", err)
	}
	retry := notices.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries, cfg.BackoffBase(), cfg.BackoffMax())
	res := resolver.New(downloader, a.artifacts, mirror, retry, logger.Named("resolver"))

	extractor := extract.New(extract.Config{
		PdftotextPath: cfg.Extract.PdftotextPath,
		PdftoppmPath:  cfg.Extract.PdftoppmPath,
		TesseractPath: cfg.Extract.TesseractPath,
		OCRThreshold:  cfg.Extract.OCRThreshold,
		OCRDPI:        cfg.Extract.OCRDPI,
		Timeout:       cfg.ExtractTimeout(),
	}, logger.Named("extract"))

	listings := make(map[notices.Category][]string)
	for _, cat := range notices.AllCategories() {
		urls, err := cfg.Site.ListingURLs(cat)
		if err != nil {
			return nil, fmt.Errorf("listing config failed: %w", err)
		}
		listings[cat] = urls
	}

	topic := ""
	if cfg.PubSub.Enabled {
		topic = cfg.PubSub.TopicName
	}
	a.orch = orchestrator.New(
		a.browserFactory(),
		listing.New(logger.Named("listing")),
		res,
		extractor,
		a.store,
		a.publisher,
		a.hub,
		idgen.New(),
		system.New(),
		orchestrator.Config{
			Listings:   listings,
			Topic:      topic,
			Concurrent: cfg.Run.Concurrent,
		},
		logger.Named("orchestrator"),
	)

	a.api = api.NewServer(a.store, a.registry, logger.Named("api"))
	return a, nil
}

func (a *App) setupMirror(ctx context.Context) (notices.ArtifactStore, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	a.gcsClient = client
	mirror, err := archive.NewGCS(client, a.cfg.Archive.Bucket, a.cfg.Archive.Prefix)
	if err != nil {
		return nil, fmt.Errorf("archive init failed: %w", err)
	}
	a.logger.Info("artifact mirror enabled",
		zap.String("bucket", a.cfg.Archive.Bucket),
		zap.String("prefix", a.cfg.Archive.Prefix))
	return mirror, nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		return nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub init failed: %w", err)
	}
	a.publisher = pub
	a.pubCloser = pub
	a.logger.Info("notice publishing enabled",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	return nil
}

// browserFactory hands each category run its own Chrome. Sharing one
// browser across concurrent categories would serialize them on a single
// page state.
func (a *App) browserFactory() orchestrator.BrowserFactory {
	cfg := browser.Config{
		Headless:   a.cfg.Browser.Headless,
		NavTimeout: a.cfg.PageLoadTimeout(),
		ExpandWait: a.cfg.ExpandWait(),
		UserAgent:  a.cfg.Site.UserAgent,
	}
	logger := a.logger.Named("browser")
	return func(context.Context) (notices.Browser, error) {
		return browser.New(cfg, logger)
	}
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store exposes the Postgres-backed notice store.
func (a *App) Store() *store.Store {
	return a.store
}

// DebugHandler returns the debug HTTP surface (probes, metrics, run
// history).
func (a *App) DebugHandler() http.Handler {
	return a.api.Handler()
}

// Scrape runs every non-skipped category and returns their summaries. The
// schema statements are idempotent, so applying them up front makes a fresh
// database and a re-run look the same.
func (a *App) Scrape(ctx context.Context) ([]notices.CategorySummary, error) {
	cats := a.cfg.Run.Categories()
	if len(cats) == 0 {
		return nil, fmt.Errorf("every category is skipped; nothing to do")
	}
	if err := a.store.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return a.orch.Run(ctx, cats)
}

// Close shuts the services down. The hub goes first so buffered progress
// events still reach the store before the pool closes.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubCloser != nil {
		if err := a.pubCloser.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Info("shutdown complete")
	// Syncing a terminal-backed logger fails on some platforms; best effort.
	_ = a.logger.Sync()
	return nil
}
