// Package resolver turns listing stubs into local PDF artifacts: a served
// PDF is downloaded, an HTML detail page is printed to PDF, everything else
// degrades to a synthesized summary.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

// DownloaderConfig tunes the plain-HTTP document fetcher.
type DownloaderConfig struct {
	UserAgent  string
	Timeout    time.Duration
	PerHostRPS float64
}

// CollyDownloader implements notices.Downloader using the Colly collector.
// Each Download runs on a clone of the base collector; a per-host rate
// limiter keeps the scraper polite across retries.
type CollyDownloader struct {
	base         *colly.Collector
	logger       *zap.Logger
	hostRPS      float64
	hostLimiters sync.Map
}

// NewCollyDownloader constructs a configured downloader.
func NewCollyDownloader(cfg DownloaderConfig, logger *zap.Logger) (*CollyDownloader, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []colly.CollectorOption{
		colly.Async(true),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	// Retries re-fetch the same URL, so revisits must be legal.
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &CollyDownloader{
		base:    base,
		logger:  logger,
		hostRPS: cfg.PerHostRPS,
	}, nil
}

type downloadResult struct {
	dl  notices.Download
	err error
}

// Download fetches rawURL and reports the final response even for error
// statuses, so callers can classify 404s instead of retrying them.
func (d *CollyDownloader) Download(ctx context.Context, rawURL string) (notices.Download, error) {
	if err := d.waitHostBudget(ctx, rawURL); err != nil {
		return notices.Download{}, fmt.Errorf("download rate limit: %w", err)
	}

	collector := d.base.Clone()
	resultCh := make(chan downloadResult, 1)
	var once sync.Once
	send := func(res downloadResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(downloadResult{dl: toDownload(rawURL, r)})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			send(downloadResult{dl: toDownload(rawURL, r)})
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(downloadResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return notices.Download{}, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return notices.Download{}, err
		}
		return res.dl, res.err
	default:
		return notices.Download{}, errors.New("download produced no result")
	}
}

func toDownload(rawURL string, r *colly.Response) notices.Download {
	contentType := ""
	if r.Headers != nil {
		contentType = r.Headers.Get("Content-Type")
	}
	final := rawURL
	if r.Request != nil && r.Request.URL != nil {
		final = r.Request.URL.String()
	}
	return notices.Download{
		Body:        append([]byte{}, r.Body...),
		StatusCode:  r.StatusCode,
		ContentType: contentType,
		FinalURL:    final,
	}
}

func (d *CollyDownloader) waitHostBudget(ctx context.Context, rawURL string) error {
	if d.hostRPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse download url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := d.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(d.hostRPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}
