package notices

import (
	"context"
	"time"
)

// Browser is the headless-browser capability a category run owns exclusively:
// page loading, pagination expansion and print-to-PDF. Implementations keep
// the loaded page as current state between calls.
type Browser interface {
	LoadPage(ctx context.Context, url string) error
	ExpandPagination(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	RenderPDF(ctx context.Context, url string) ([]byte, error)
	Close() error
}

// Download is the result of fetching a detail target over plain HTTP.
type Download struct {
	Body        []byte
	StatusCode  int
	ContentType string
	FinalURL    string
}

// Downloader fetches a URL without involving the browser.
type Downloader interface {
	Download(ctx context.Context, url string) (Download, error)
}

// TextExtractor pulls text out of a local PDF. Unreadable input is not an
// error: implementations degrade to empty content and fail only when the
// context is done.
type TextExtractor interface {
	Extract(ctx context.Context, pdfPath string) (ExtractedText, error)
}

// RecordStore persists normalized records idempotently.
type RecordStore interface {
	Upsert(ctx context.Context, rec Record) error
}

// ArtifactStore writes notice documents and returns their location: an
// absolute path for filesystem stores, a URI for remote mirrors.
type ArtifactStore interface {
	Put(ctx context.Context, relPath string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RetryPolicy decides whether and when resolver failures are retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
