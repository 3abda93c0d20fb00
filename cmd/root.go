package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/app"
	"github.com/regwatch/fda-notice-scraper/internal/config"
	"github.com/regwatch/fda-notice-scraper/internal/notices"
	"github.com/regwatch/fda-notice-scraper/internal/store"
)

var (
	cfgFile string
	verbose bool
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 15 * time.Second

// App is the application surface the commands drive. It is an interface so
// tests can swap in a fake via newApp.
type App interface {
	Close(ctx context.Context) error
	Logger() *zap.Logger
	Store() *store.Store
	Config() config.Config
	Scrape(ctx context.Context) ([]notices.CategorySummary, error)
	DebugHandler() http.Handler
}

// newApp is the application factory. It is a variable so tests can replace
// it with a fake factory.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Development = true
	}
	return app.Build(ctx, cfg)
}

// NewRootCmd creates and configures the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fdanotices",
		Short: "Scrapes FDA Ghana recalls, alerts and press releases into Postgres",
		Long: `fdanotices walks the FDA Ghana newsroom listings, secures a PDF for
every notice (downloaded, browser-rendered, or generated as a fallback),
extracts its text, and upserts a normalized record per notice. Re-running
against an unchanged site is a no-op.`,
		SilenceUsage: true,

		// Build the application after flags are parsed but before the
		// subcommand runs, and stow it in the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a, ok := cmd.Context().Value(appKey).(App)
			if !ok || a == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := a.Close(ctx); err != nil {
				a.Logger().Warn("shutdown error", zap.Error(err))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (defaults plus FDA_* environment variables apply without one)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	cmd.AddCommand(newRunCmd(), newInitDBCmd(), newStatsCmd(), newPurgeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() error {
	return NewRootCmd().Execute()
}

func resolveApp(ctx context.Context) (App, error) {
	a, ok := ctx.Value(appKey).(App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}
