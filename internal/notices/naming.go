package notices

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var filenameJunk = regexp.MustCompile(`[^0-9A-Za-z_\- ]+`)

// CleanFilename reduces free text to a filesystem-safe name. Letters, digits,
// underscore, dash and spaces survive; spaces then become underscores.
func CleanFilename(name string) string {
	name = filenameJunk.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	return strings.ReplaceAll(name, " ", "_")
}

// SourceBasename derives a local filename from the last path segment of a
// downloaded PDF's URL. Returns "" when the URL has no usable segment.
func SourceBasename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	stem := CleanFilename(strings.TrimSuffix(base, path.Ext(base)))
	if stem == "" {
		return ""
	}
	return stem + ".pdf"
}

// RenderedFilename names a detail page printed to PDF: cleaned title plus the
// listing date, so reruns land on the same file.
func RenderedFilename(stub EntryStub) string {
	return titleDateStem(stub) + ".pdf"
}

// FallbackFilename names a synthesized document. Recalls keep the historical
// Recall_Summary_ prefix; other categories use the title-and-date stem.
func FallbackFilename(stub EntryStub) string {
	if stub.Category == CategoryRecall {
		return "Recall_Summary_" + recallGroup(stub) + ".pdf"
	}
	return titleDateStem(stub) + ".pdf"
}

// ArtifactRelPath joins the category directory, the per-product group for
// recalls, and the file name into a store-relative path.
func ArtifactRelPath(stub EntryStub, filename string) string {
	if stub.Category == CategoryRecall {
		return path.Join(stub.Category.Dir(), recallGroup(stub), filename)
	}
	return path.Join(stub.Category.Dir(), filename)
}

func titleDateStem(stub EntryStub) string {
	name := CleanFilename(stub.Title)
	if name == "" {
		name = "Untitled"
	}
	if d := CleanFilename(stub.RawDate); d != "" {
		name = name + "_" + d
	}
	return name
}

func recallGroup(stub EntryStub) string {
	name := CleanFilename(stub.Title)
	if name == "" {
		return "Unknown_Product"
	}
	return name
}
