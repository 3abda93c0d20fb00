// Package pdfgen synthesizes summary PDFs for notices whose detail target is
// missing or unreachable, so every persisted record still has an artifact.
package pdfgen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

// Document is a synthesized notice summary: a centered title followed by
// "Label: value" lines in listing order.
type Document struct {
	Title  string
	Fields []Field
}

// Field is one label/value line.
type Field struct {
	Label string
	Value string
}

// ForStub builds the summary document for a listing row. errNote, when
// non-empty, is recorded as an Error line; callers pass it only for dead
// detail targets, not for transient transport failures.
func ForStub(stub notices.EntryStub, errNote string) Document {
	doc := Document{Title: titleFor(stub)}
	if stub.Title != "" {
		label := "Title"
		if stub.Category == notices.CategoryRecall {
			label = "Product Name"
		}
		doc.Fields = append(doc.Fields, Field{label, stub.Title})
	}
	if stub.RawDate != "" {
		doc.Fields = append(doc.Fields, Field{"Date", stub.RawDate})
	}
	for _, c := range stub.Columns {
		doc.Fields = append(doc.Fields, Field{c.Label, c.Value})
	}
	if stub.DetailURL != "" {
		doc.Fields = append(doc.Fields, Field{"Source", stub.DetailURL})
	}
	if errNote != "" {
		doc.Fields = append(doc.Fields, Field{"Error", errNote})
	}
	return doc
}

// Render produces the PDF bytes for doc.
func Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 10, toLatin1(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(10)
	for _, f := range doc.Fields {
		pdf.MultiCell(0, 10, fmt.Sprintf("%s: %s", toLatin1(f.Label), toLatin1(f.Value)), "", "L", false)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func titleFor(stub notices.EntryStub) string {
	switch stub.Category {
	case notices.CategoryRecall:
		name := notices.CleanFilename(stub.Title)
		if name == "" {
			name = "Unknown_Product"
		}
		return "Recall Summary: " + name
	case notices.CategoryAlert:
		return "Safety Alert: " + stub.Title
	case notices.CategoryPressRelease:
		return "Press Release: " + stub.Title
	}
	return stub.Title
}

// toLatin1 swaps characters the core PDF fonts cannot encode for '?'.
func toLatin1(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= 0xFF {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}
