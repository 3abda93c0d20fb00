// Package normalize maps scraped raw material onto persistable records. All
// functions are pure; structured recall fields come from the listing row's
// auxiliary columns first and the extracted text second, and a field whose
// label is nowhere to be found stays nil rather than becoming an empty
// string.
package normalize

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

// dateFormats in match order. The unpadded layouts accept both "5/3/2024"
// and "05/03/2024"; day-first forms win over ISO ones.
var dateFormats = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2006/1/2",
	"2006",
	"2006-1",
}

var reasonJunk = regexp.MustCompile(`(?i)privacy|policy|footer|copyright`)

// Build assembles the record for one entry. The artifact path is taken as
// is; callers guarantee it exists by the time Build runs.
func Build(stub notices.EntryStub, art notices.Artifact, text notices.ExtractedText) notices.Record {
	rec := notices.Record{
		Type:    stub.Category,
		PDFPath: art.LocalPath,
		AllText: text.Content,
	}
	if stub.DetailURL != "" {
		rec.SourceURL = strPtr(stub.DetailURL)
	}

	switch stub.Category {
	case notices.CategoryAlert:
		rec.Alert = buildAlert(stub, art)
	case notices.CategoryPressRelease:
		rec.PressRelease = buildPressRelease(stub, art)
	default:
		rec.Recall = buildRecall(stub, text)
	}
	return rec
}

func buildRecall(stub notices.EntryStub, text notices.ExtractedText) *notices.RecallFields {
	f := &notices.RecallFields{
		DateIssued:  ParseDate(stub.RawDate),
		ProductName: strings.TrimSpace(stub.Title),
	}
	f.ProductType = fieldFromColumns(stub, "product type")
	f.Manufacturer = fieldFromColumns(stub, "manufacturer")
	f.RecallingFirm = fieldFromColumns(stub, "recalling firm")
	f.BatchNumbers = pick(
		fieldFromColumns(stub, "batch(es)", "batch numbers", "batch number"),
		fieldFromText(text.Content, "batch no", "batch numbers", "batch number", "batch(es)"),
	)
	f.ManufacturingDate = pick(
		fieldFromColumns(stub, "manufacturing date", "manufacturing dates"),
		fieldFromText(text.Content, "manufacturing date"),
	)
	f.ExpiryDate = pick(
		fieldFromColumns(stub, "expiry date", "expiry dates"),
		fieldFromText(text.Content, "expiry date"),
	)
	f.Reason = pick(
		fieldFromColumns(stub, "reason for recall", "recall reason"),
		reasonFromText(text.Content),
	)
	return f
}

func buildAlert(stub notices.EntryStub, art notices.Artifact) *notices.AlertFields {
	return &notices.AlertFields{
		DateIssued:  ParseDate(stub.RawDate),
		Title:       strings.TrimSpace(stub.Title),
		PDFFilename: filepath.Base(art.LocalPath),
	}
}

func buildPressRelease(stub notices.EntryStub, art notices.Artifact) *notices.PressReleaseFields {
	f := &notices.PressReleaseFields{
		Title: strings.TrimSpace(stub.Title),
		Date:  ParseDate(stub.RawDate),
	}
	switch {
	case art.SourceURL != "":
		f.PDFLink = strPtr(art.SourceURL)
	case stub.DetailURL != "":
		f.PDFLink = strPtr(stub.DetailURL)
	}
	return f
}

// ParseDate tries each accepted layout and returns nil for text no layout
// matches. Year-only and year-month values resolve to the first day of the
// period.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// fieldFromColumns returns the first non-blank auxiliary column matching one
// of the label aliases.
func fieldFromColumns(stub notices.EntryStub, labels ...string) *string {
	for _, label := range labels {
		if v := strings.TrimSpace(stub.Column(label)); v != "" {
			return strPtr(v)
		}
	}
	return nil
}

// fieldFromText scans the extracted text line by line for "Label: value"
// occurrences.
func fieldFromText(text string, labels ...string) *string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for _, label := range labels {
		for _, line := range lines {
			val, ok := afterLabel(line, label)
			if !ok || val == "" || utf8.RuneCountInString(val) >= 500 {
				continue
			}
			return strPtr(val)
		}
	}
	return nil
}

// reasonFromText applies the recall-reason heuristics: most specific label
// first, value on the label's own line or the next non-blank one, and no
// boilerplate posing as a reason.
func reasonFromText(text string) *string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for _, label := range []string{"reason for recall", "recall reason", "reason"} {
		for i, line := range lines {
			candidate, ok := afterLabel(line, label)
			if !ok {
				continue
			}
			if candidate == "" {
				for _, next := range lines[i+1:] {
					if s := strings.TrimSpace(next); s != "" {
						candidate = strings.Trim(s, " :-")
						break
					}
				}
			}
			if acceptableReason(candidate) {
				return strPtr(candidate)
			}
		}
	}
	return nil
}

// afterLabel finds label in line case-insensitively and returns the trimmed
// remainder. The length guard covers scripts whose lowercase form is longer
// than the original bytes.
func afterLabel(line, label string) (string, bool) {
	idx := strings.Index(strings.ToLower(line), label)
	if idx == -1 || idx+len(label) > len(line) {
		return "", false
	}
	return strings.Trim(line[idx+len(label):], " :-"), true
}

func acceptableReason(s string) bool {
	if s == "" || utf8.RuneCountInString(s) >= 500 {
		return false
	}
	return !reasonJunk.MatchString(s)
}

func pick(first, second *string) *string {
	if first != nil {
		return first
	}
	return second
}

func strPtr(s string) *string { return &s }
