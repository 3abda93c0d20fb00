// Package extract pulls text out of PDF artifacts with poppler, falling back
// to a tesseract OCR pass when the embedded text layer is thin.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

// Runner executes an external tool and returns its stdout. The seam lets
// tests script tool output without poppler or tesseract installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out.Bytes(), nil
}

// Config holds tool paths and the OCR escalation knobs.
type Config struct {
	PdftotextPath string
	PdftoppmPath  string
	TesseractPath string
	// OCRThreshold is the character count under which the direct pass is
	// considered thin and OCR is attempted.
	OCRThreshold int
	OCRDPI       int
	// Timeout bounds one artifact end to end, both passes included.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.PdftotextPath == "" {
		c.PdftotextPath = "pdftotext"
	}
	if c.PdftoppmPath == "" {
		c.PdftoppmPath = "pdftoppm"
	}
	if c.TesseractPath == "" {
		c.TesseractPath = "tesseract"
	}
	if c.OCRThreshold <= 0 {
		c.OCRThreshold = 100
	}
	if c.OCRDPI <= 0 {
		c.OCRDPI = 300
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
}

// Extractor implements notices.TextExtractor over external poppler and
// tesseract binaries.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Extractor {
	return NewWithRunner(cfg, execRunner{}, logger)
}

func NewWithRunner(cfg Config, runner Runner, logger *zap.Logger) *Extractor {
	cfg.applyDefaults()
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Extract runs the direct pass and, when it comes back under the threshold,
// an OCR pass. A corrupt or image-only PDF degrades to whatever the direct
// pass produced, possibly nothing; the only error returned is the caller's
// context expiring.
func (e *Extractor) Extract(parent context.Context, pdfPath string) (notices.ExtractedText, error) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	direct := e.directPass(ctx, pdfPath)
	if direct.Length() >= e.cfg.OCRThreshold {
		return direct, nil
	}

	ocr, err := e.ocrPass(ctx, pdfPath)
	if err != nil {
		if parent.Err() != nil {
			return notices.ExtractedText{}, parent.Err()
		}
		e.logger.Warn("ocr pass failed, keeping direct text",
			zap.String("pdf", pdfPath),
			zap.Int("direct_chars", direct.Length()),
			zap.Error(err))
		return direct, nil
	}
	if ocr.Length() >= e.cfg.OCRThreshold {
		e.logger.Debug("ocr pass recovered text",
			zap.String("pdf", pdfPath),
			zap.Int("chars", ocr.Length()))
		return ocr, nil
	}

	// Neither pass reached the threshold; the direct result, possibly
	// empty, is the honest answer.
	return direct, nil
}

func (e *Extractor) directPass(ctx context.Context, pdfPath string) notices.ExtractedText {
	out, err := e.runner.Run(ctx, e.cfg.PdftotextPath, "-raw", pdfPath, "-")
	if err != nil {
		e.logger.Warn("direct text extraction failed",
			zap.String("pdf", pdfPath),
			zap.Error(err))
		return notices.ExtractedText{Method: notices.ExtractionDirect}
	}
	return notices.ExtractedText{
		Content: strings.TrimSpace(string(out)),
		Method:  notices.ExtractionDirect,
	}
}

func (e *Extractor) ocrPass(ctx context.Context, pdfPath string) (notices.ExtractedText, error) {
	pages, cleanup, err := e.rasterize(ctx, pdfPath)
	if err != nil {
		return notices.ExtractedText{}, err
	}
	defer cleanup()

	var sb strings.Builder
	for _, page := range pages {
		out, err := e.runner.Run(ctx, e.cfg.TesseractPath, page, "stdout")
		if err != nil {
			return notices.ExtractedText{}, fmt.Errorf("recognize %s: %w", filepath.Base(page), err)
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.TrimSpace(string(out)))
	}
	return notices.ExtractedText{
		Content: strings.TrimSpace(sb.String()),
		Method:  notices.ExtractionOCR,
	}, nil
}

// rasterize renders each page to a PNG under a temp dir and returns the page
// files in page order. pdftoppm zero-pads page numbers consistently within a
// run, so a lexicographic sort is a page-order sort.
func (e *Extractor) rasterize(ctx context.Context, pdfPath string) ([]string, func(), error) {
	dir, err := os.MkdirTemp("", "notice-ocr-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create raster dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.OCRDPI), "-png", pdfPath, prefix}
	if _, err := e.runner.Run(ctx, e.cfg.PdftoppmPath, args...); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rasterize: %w", err)
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("list raster pages: %w", err)
	}
	if len(pages) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("rasterize produced no pages for %s", filepath.Base(pdfPath))
	}
	sort.Strings(pages)
	return pages, cleanup, nil
}
