package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
	"github.com/regwatch/fda-notice-scraper/internal/pdfgen"
)

// missingNote is the literal recorded in synthesized documents whose detail
// target is absent or gone; downstream consumers search for it verbatim.
const missingNote = "Page not found"

// Resolver guarantees a local PDF artifact for every listing entry. Network
// and classification failures never escape: they degrade, after retries, to
// a synthesized summary document. The returned error is reserved for
// artifact storage failures and context teardown.
type Resolver struct {
	downloader notices.Downloader
	files      notices.ArtifactStore
	mirror     notices.ArtifactStore
	retry      notices.RetryPolicy
	logger     *zap.Logger
}

// New wires a Resolver. mirror may be nil; it is best-effort when set.
func New(downloader notices.Downloader, files notices.ArtifactStore, mirror notices.ArtifactStore, retry notices.RetryPolicy, logger *zap.Logger) *Resolver {
	return &Resolver{
		downloader: downloader,
		files:      files,
		mirror:     mirror,
		retry:      retry,
		logger:     logger,
	}
}

// Resolve classifies the stub's detail target and produces the artifact.
// The browser is borrowed from the category run for HTML-to-PDF rendering.
func (r *Resolver) Resolve(ctx context.Context, b notices.Browser, stub notices.EntryStub) (notices.Artifact, error) {
	if stub.DetailURL == "" {
		return r.fallback(ctx, stub, missingNote)
	}

	art, err := r.resolveTarget(ctx, b, stub)
	if err == nil {
		return art, nil
	}
	if ctx.Err() != nil {
		return notices.Artifact{}, ctx.Err()
	}
	if errors.Is(err, notices.ErrNotFound) {
		return r.fallback(ctx, stub, missingNote)
	}
	r.logger.Warn("detail resolution failed, synthesizing summary",
		zap.String("url", stub.DetailURL),
		zap.Error(err))
	return r.fallback(ctx, stub, "")
}

func (r *Resolver) resolveTarget(ctx context.Context, b notices.Browser, stub notices.EntryStub) (notices.Artifact, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		art, err := r.attempt(ctx, b, stub)
		if err == nil {
			return art, nil
		}
		lastErr = err
		if !r.retry.ShouldRetry(err, attempt) {
			return notices.Artifact{}, lastErr
		}
		r.logger.Debug("retrying detail target",
			zap.String("url", stub.DetailURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if err := sleepFor(ctx, r.retry.Backoff(attempt)); err != nil {
			return notices.Artifact{}, lastErr
		}
	}
}

func (r *Resolver) attempt(ctx context.Context, b notices.Browser, stub notices.EntryStub) (notices.Artifact, error) {
	dl, err := r.downloader.Download(ctx, stub.DetailURL)
	if err != nil {
		return notices.Artifact{}, fmt.Errorf("download: %w", err)
	}

	switch classify(dl, stub.DetailURL) {
	case targetMissing:
		return notices.Artifact{}, fmt.Errorf("%s: %w", stub.DetailURL, notices.ErrNotFound)
	case targetError:
		return notices.Artifact{}, fmt.Errorf("detail target returned status %d", dl.StatusCode)
	case targetPDF:
		name := notices.SourceBasename(dl.FinalURL)
		if name == "" {
			name = notices.SourceBasename(stub.DetailURL)
		}
		if name == "" {
			name = notices.RenderedFilename(stub)
		}
		return r.storeArtifact(ctx, stub, notices.ArtifactDownloaded, name, dl.Body, dl.FinalURL)
	default:
		pdf, err := b.RenderPDF(ctx, stub.DetailURL)
		if err != nil {
			return notices.Artifact{}, fmt.Errorf("render: %w", err)
		}
		return r.storeArtifact(ctx, stub, notices.ArtifactRendered, notices.RenderedFilename(stub), pdf, stub.DetailURL)
	}
}

type targetKind int

const (
	targetHTML targetKind = iota
	targetPDF
	targetMissing
	targetError
)

// classify decides what the detail target is, in precedence order: HTTP
// status, then content type, then URL extension, then a %PDF sniff.
func classify(dl notices.Download, rawURL string) targetKind {
	switch {
	case dl.StatusCode == http.StatusNotFound || dl.StatusCode == http.StatusGone:
		return targetMissing
	case dl.StatusCode >= 400:
		return targetError
	}

	ct := strings.ToLower(dl.ContentType)
	if strings.Contains(ct, "application/pdf") {
		return targetPDF
	}
	if strings.Contains(ct, "text/html") {
		return targetHTML
	}

	target := dl.FinalURL
	if target == "" {
		target = rawURL
	}
	if parsed, err := url.Parse(target); err == nil &&
		strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf") {
		return targetPDF
	}
	if bytes.HasPrefix(dl.Body, []byte("%PDF")) {
		return targetPDF
	}
	return targetHTML
}

// fallback synthesizes a summary PDF from the listing data alone. errNote is
// recorded in the document only for dead targets, mirroring how transient
// failures are kept out of the artifact.
func (r *Resolver) fallback(ctx context.Context, stub notices.EntryStub, errNote string) (notices.Artifact, error) {
	data, err := pdfgen.Render(pdfgen.ForStub(stub, errNote))
	if err != nil {
		return notices.Artifact{}, fmt.Errorf("synthesize fallback: %w", err)
	}
	rel := notices.ArtifactRelPath(stub, notices.FallbackFilename(stub))
	local, err := r.files.Put(ctx, rel, "application/pdf", data)
	if err != nil {
		return notices.Artifact{}, fmt.Errorf("store fallback: %w", err)
	}
	r.mirrorPut(ctx, rel, data)
	return notices.Artifact{Kind: notices.ArtifactFallback, LocalPath: local}, nil
}

func (r *Resolver) storeArtifact(ctx context.Context, stub notices.EntryStub, kind notices.ArtifactKind, filename string, data []byte, sourceURL string) (notices.Artifact, error) {
	rel := notices.ArtifactRelPath(stub, filename)
	local, err := r.files.Put(ctx, rel, "application/pdf", data)
	if err != nil {
		return notices.Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	r.mirrorPut(ctx, rel, data)
	return notices.Artifact{Kind: kind, LocalPath: local, SourceURL: sourceURL}, nil
}

func (r *Resolver) mirrorPut(ctx context.Context, rel string, data []byte) {
	if r.mirror == nil {
		return
	}
	uri, err := r.mirror.Put(ctx, rel, "application/pdf", data)
	if err != nil {
		r.logger.Warn("artifact mirror failed", zap.String("path", rel), zap.Error(err))
		return
	}
	r.logger.Debug("artifact mirrored", zap.String("uri", uri))
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
