// Package listing discovers notice entries on the regulator's listing pages.
package listing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

// profile describes how a category's table is recognized: the table must
// carry one of the title headers and one of the date headers. Candidates are
// matched against lowercased header text, most specific first.
type profile struct {
	titleHeaders []string
	dateHeaders  []string
}

var profiles = map[notices.Category]profile{
	notices.CategoryRecall: {
		titleHeaders: []string{"product name"},
		dateHeaders:  []string{"date recall was issued", "date of recall", "date issued", "date"},
	},
	notices.CategoryAlert: {
		titleHeaders: []string{"alert title", "title", "product name"},
		dateHeaders:  []string{"date issued", "date"},
	},
	notices.CategoryPressRelease: {
		titleHeaders: []string{"press release title", "title"},
		dateHeaders:  []string{"date issued", "date"},
	},
}

// Discoverer walks one category listing with an exclusively-owned browser.
type Discoverer struct {
	logger *zap.Logger
}

// New creates a Discoverer.
func New(logger *zap.Logger) *Discoverer {
	return &Discoverer{logger: logger}
}

// Discover loads the listing page, expands pagination so the table shows
// every row, and parses the snapshot in one pass. Any failure aborts the
// category: a partial listing must never pass as complete.
func (d *Discoverer) Discover(ctx context.Context, b notices.Browser, cat notices.Category, listingURL string) ([]notices.EntryStub, error) {
	if err := b.LoadPage(ctx, listingURL); err != nil {
		return nil, fmt.Errorf("listing %s: %w", cat, err)
	}
	if err := b.ExpandPagination(ctx); err != nil {
		return nil, fmt.Errorf("listing %s: %w", cat, err)
	}
	html, err := b.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", cat, err)
	}
	stubs, err := Parse(html, cat, listingURL)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", cat, err)
	}
	d.logger.Info("listing discovered",
		zap.String("category", string(cat)),
		zap.Int("entries", len(stubs)))
	return stubs, nil
}

// Parse extracts entry stubs from expanded listing HTML. The notice table is
// identified by its headers; rows become stubs in document order. Relative
// detail links are resolved against baseURL.
func Parse(html string, cat notices.Category, baseURL string) ([]notices.EntryStub, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}

	prof, ok := profiles[cat]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", cat)
	}
	table, headers := findNoticeTable(doc, prof)
	if table == nil {
		return nil, fmt.Errorf("notice table not found for %s", cat)
	}
	titleIdx := headerIndex(headers, prof.titleHeaders)
	dateIdx := headerIndex(headers, prof.dateHeaders)

	var stubs []notices.EntryStub
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("td").Length() == 0 {
			return // header or decoration row
		}
		cells := row.Find("th, td")
		stub := notices.EntryStub{Category: cat}
		empty := true
		cells.Each(func(i int, cell *goquery.Selection) {
			if i >= len(headers) {
				return
			}
			text := strings.TrimSpace(cell.Text())
			if text != "" {
				empty = false
			}
			switch i {
			case titleIdx:
				stub.Title = text
			case dateIdx:
				stub.RawDate = text
			default:
				stub.Columns = append(stub.Columns, notices.Column{Label: headers[i], Value: text})
			}
		})
		stub.DetailURL = detailLink(cells, titleIdx, base)
		if stub.DetailURL != "" {
			empty = false
		}
		if empty {
			return
		}
		stubs = append(stubs, stub)
	})
	return stubs, nil
}

// findNoticeTable returns the first table carrying both a title and a date
// header, plus its header texts as shown.
func findNoticeTable(doc *goquery.Document, prof profile) (*goquery.Selection, []string) {
	var (
		found        *goquery.Selection
		foundHeaders []string
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		var headers []string
		table.Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(th.Text()))
		})
		if headerIndex(headers, prof.titleHeaders) >= 0 && headerIndex(headers, prof.dateHeaders) >= 0 {
			found = table
			foundHeaders = headers
			return false
		}
		return true
	})
	return found, foundHeaders
}

// headerIndex returns the position of the first header matching any
// candidate, trying candidates in order so specific names win.
func headerIndex(headers []string, candidates []string) int {
	for _, want := range candidates {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	return -1
}

// detailLink finds the row's detail target: a link inside the title cell
// wins, then any link elsewhere in the row. Fragment-only and javascript
// pseudo-links do not count.
func detailLink(cells *goquery.Selection, titleIdx int, base *url.URL) string {
	var href string
	if titleIdx >= 0 && titleIdx < cells.Length() {
		href = firstHref(cells.Eq(titleIdx))
	}
	if href == "" {
		href = firstHref(cells)
	}
	if href == "" {
		return ""
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return ""
	}
	return resolved.String()
}

func firstHref(sel *goquery.Selection) string {
	var href string
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		raw, _ := a.Attr("href")
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
			return true
		}
		href = raw
		return false
	})
	return href
}
