// Package cmd defines the CLI commands for the fdanotices executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs a full scrape of all configured categories",
		Long: `Walks each configured listing page, processes every discovered entry,
and prints a per-category summary. Entry-level failures are counted and do
not stop the batch; a category only fails when its listing cannot be read.`,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := startDebugServer(a)

	sums, err := a.Scrape(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.Logger().Warn("debug server shutdown error", zap.Error(serr))
		}
	}
	if err != nil {
		return fmt.Errorf("run scrape: %w", err)
	}

	allFailed := len(sums) > 0
	for _, sum := range sums {
		fmt.Fprintln(cmd.OutOrStdout(), sum.String())
		if sum.Status != notices.RunFailed {
			allFailed = false
		}
	}
	if allFailed {
		return errors.New("every category failed")
	}
	return nil
}

// startDebugServer exposes probes and metrics for the duration of the
// scrape when the config asks for it. Returns nil when disabled.
func startDebugServer(a App) *http.Server {
	cfg := a.Config()
	if !cfg.Server.Enabled {
		return nil
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.DebugHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger().Info("debug server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger().Error("debug server error", zap.Error(err))
		}
	}()
	return srv
}
