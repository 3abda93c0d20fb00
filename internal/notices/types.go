// Package notices defines core types shared across subsystems.
package notices

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Category identifies one listing section of the regulator site. The value
// doubles as the entry_type discriminator persisted with every record.
type Category string

// Categories the scraper knows how to walk.
const (
	CategoryRecall       Category = "recall"
	CategoryAlert        Category = "alert"
	CategoryPressRelease Category = "press_release"
)

// AllCategories returns the categories in the order a full run visits them.
func AllCategories() []Category {
	return []Category{CategoryRecall, CategoryAlert, CategoryPressRelease}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryRecall, CategoryAlert, CategoryPressRelease:
		return true
	}
	return false
}

// Dir returns the artifact subdirectory used for the category.
func (c Category) Dir() string {
	switch c {
	case CategoryRecall:
		return "recalls"
	case CategoryAlert:
		return "alerts"
	case CategoryPressRelease:
		return "press_releases"
	}
	return string(c)
}

// EntryStub is a single listing row: everything known about a notice before
// its detail target has been resolved.
type EntryStub struct {
	Category  Category
	Title     string
	DetailURL string   // absolute URL; empty when the row carries no link
	RawDate   string   // date column text exactly as shown
	Columns   []Column // remaining cells in listing order
}

// Column is one auxiliary listing cell. Label keeps the header text as shown
// on the page.
type Column struct {
	Label string
	Value string
}

// Column returns the cell text for a listing header, matched without case,
// or "" when the listing had no such column.
func (s EntryStub) Column(label string) string {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Label, label) {
			return c.Value
		}
	}
	return ""
}

// ArtifactKind records how the local PDF for an entry was obtained.
type ArtifactKind string

// Artifact kinds, in order of preference.
const (
	ArtifactDownloaded ArtifactKind = "downloaded" // detail target served PDF bytes
	ArtifactRendered   ArtifactKind = "rendered"   // detail page printed to PDF
	ArtifactFallback   ArtifactKind = "fallback"   // synthesized from listing data
)

// Artifact is the local PDF guaranteed to exist for every processed entry.
// SourceURL is the final URL the bytes were fetched from and stays empty for
// synthesized documents.
type Artifact struct {
	Kind      ArtifactKind
	LocalPath string
	SourceURL string
}

// ExtractionMethod labels the stage that produced extracted text.
type ExtractionMethod string

const (
	ExtractionDirect ExtractionMethod = "direct"
	ExtractionOCR    ExtractionMethod = "ocr"
)

// ExtractedText is the outcome of pulling text out of a PDF artifact.
// Content may be empty; an empty result is an outcome, not an error.
type ExtractedText struct {
	Content string
	Method  ExtractionMethod
}

// Length counts characters rather than bytes so the OCR threshold treats
// non-ASCII text fairly.
func (e ExtractedText) Length() int {
	return utf8.RuneCountInString(e.Content)
}

// Record is the normalized form of one notice, ready for persistence. It is
// a tagged union: Type names the variant and exactly one of the variant
// pointers is populated. The wide-table flattening of the three variants is
// the store's business, not this package's.
type Record struct {
	Type         Category
	Recall       *RecallFields
	Alert        *AlertFields
	PressRelease *PressReleaseFields

	SourceURL *string // detail target from the listing row, when it had one
	PDFPath   string  // local artifact path, always set
	AllText   string  // extracted text, possibly empty
}

// RecallFields carries the recall-specific columns. Manufacturing and expiry
// dates keep the text exactly as listed; only the issue date is parsed.
type RecallFields struct {
	DateIssued        *time.Time
	ProductName       string
	ProductType       *string
	Manufacturer      *string
	RecallingFirm     *string
	BatchNumbers      *string
	ManufacturingDate *string
	ExpiryDate        *string
	Reason            *string
}

// AlertFields carries the alert-specific columns.
type AlertFields struct {
	DateIssued  *time.Time
	Title       string
	PDFFilename string // basename of the local artifact
}

// PressReleaseFields carries the press-release-specific columns.
type PressReleaseFields struct {
	Title   string
	Date    *time.Time
	PDFLink *string // public link to the source PDF, when known
}

// Validate checks the tag/variant agreement and the artifact invariant.
func (r Record) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("record: unknown entry type %q", r.Type)
	}
	if r.PDFPath == "" {
		return fmt.Errorf("record: missing pdf path")
	}
	populated := 0
	if r.Recall != nil {
		populated++
	}
	if r.Alert != nil {
		populated++
	}
	if r.PressRelease != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("record: %d variants populated, want 1", populated)
	}
	switch r.Type {
	case CategoryRecall:
		if r.Recall == nil {
			return fmt.Errorf("record: type %q without recall fields", r.Type)
		}
	case CategoryAlert:
		if r.Alert == nil {
			return fmt.Errorf("record: type %q without alert fields", r.Type)
		}
	case CategoryPressRelease:
		if r.PressRelease == nil {
			return fmt.Errorf("record: type %q without press release fields", r.Type)
		}
	}
	return nil
}

// Title returns the variant's display title.
func (r Record) Title() string {
	switch {
	case r.Recall != nil:
		return r.Recall.ProductName
	case r.Alert != nil:
		return r.Alert.Title
	case r.PressRelease != nil:
		return r.PressRelease.Title
	}
	return ""
}

// RunStatus is the state of one category run as recorded in the run ledger.
// Running rows are rewritten with a terminal status when the category
// finishes.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// CategorySummary is the per-category outcome reported when a run finishes.
// Succeeded counts entries persisted with a real artifact, Fallback those
// persisted with a synthesized one, Failed those abandoned after an error.
type CategorySummary struct {
	Category  Category
	Status    RunStatus
	Started   time.Time
	Finished  time.Time
	Succeeded int
	Fallback  int
	Failed    int
	ErrorText string
}

// Processed returns the number of listing entries the run consumed.
func (s CategorySummary) Processed() int {
	return s.Succeeded + s.Fallback + s.Failed
}

// String renders the one-line form used in run summaries.
func (s CategorySummary) String() string {
	if s.Status == RunFailed && s.Processed() == 0 {
		return fmt.Sprintf("%s: failed (%s)", s.Category, s.ErrorText)
	}
	return fmt.Sprintf("%s: %d succeeded, %d fallback, %d failed",
		s.Category, s.Succeeded, s.Fallback, s.Failed)
}
