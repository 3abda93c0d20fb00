package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

const recallListingHTML = `<html><body>
<table class="filters"><tr><th>Search</th></tr><tr><td><input></td></tr></table>
<table id="recalls">
<thead><tr>
<th>Date Recall was Issued</th><th>Product Name</th><th>Product Type</th>
<th>Manufacturer</th><th>Recalling Firm</th><th>Batch(es)</th>
<th>Manufacturing Date</th><th>Expiry Date</th>
</tr></thead>
<tbody>
<tr>
  <td>12/03/2024</td>
  <td><a href="/recalls/mamas-choice">Mama's Choice Syrup</a></td>
  <td>Syrup</td><td>Acme Pharma</td><td>Acme Ltd</td>
  <td>KX-19</td><td>01/2023</td><td>01/2025</td>
</tr>
<tr>
  <td>05-01-2024</td>
  <td>Plain Product</td>
  <td>Tablet</td><td></td><td></td><td>B-7</td><td></td><td>2026</td>
</tr>
<tr><td></td><td></td><td></td><td></td><td></td><td></td><td></td><td></td></tr>
</tbody>
</table></body></html>`

func TestParse_RecallListing(t *testing.T) {
	t.Parallel()

	stubs, err := Parse(recallListingHTML, notices.CategoryRecall,
		"https://fdaghana.gov.gh/newsroom/product-recalls-and-alerts/")
	require.NoError(t, err)
	require.Len(t, stubs, 2)

	first := stubs[0]
	require.Equal(t, notices.CategoryRecall, first.Category)
	require.Equal(t, "Mama's Choice Syrup", first.Title)
	require.Equal(t, "12/03/2024", first.RawDate)
	require.Equal(t, "https://fdaghana.gov.gh/recalls/mamas-choice", first.DetailURL)
	require.Equal(t, []notices.Column{
		{Label: "Product Type", Value: "Syrup"},
		{Label: "Manufacturer", Value: "Acme Pharma"},
		{Label: "Recalling Firm", Value: "Acme Ltd"},
		{Label: "Batch(es)", Value: "KX-19"},
		{Label: "Manufacturing Date", Value: "01/2023"},
		{Label: "Expiry Date", Value: "01/2025"},
	}, first.Columns)

	second := stubs[1]
	require.Equal(t, "Plain Product", second.Title)
	require.Empty(t, second.DetailURL)
	require.Equal(t, "B-7", second.Column("batch(es)"))
	require.Equal(t, "2026", second.Column("expiry date"))
}

func TestParse_PressReleaseLinkInDownloadColumn(t *testing.T) {
	t.Parallel()

	html := `<table>
<tr><th>Date</th><th>Title</th><th>Download</th></tr>
<tr><td>2024-02-10</td><td>New Lab Commissioned</td>
<td><a href="javascript:void(0)">noop</a>
<a href="https://fdaghana.gov.gh/files/pr-lab.pdf">PDF</a></td></tr>
</table>`

	stubs, err := Parse(html, notices.CategoryPressRelease, "https://fdaghana.gov.gh/newsroom/press-releases/")
	require.NoError(t, err)
	require.Len(t, stubs, 1)
	require.Equal(t, "New Lab Commissioned", stubs[0].Title)
	require.Equal(t, "2024-02-10", stubs[0].RawDate)
	require.Equal(t, "https://fdaghana.gov.gh/files/pr-lab.pdf", stubs[0].DetailURL)
}

func TestParse_TitleCellLinkWins(t *testing.T) {
	t.Parallel()

	html := `<table>
<tr><th>Date Issued</th><th>Alert Title</th><th>More</th></tr>
<tr><td>2023-08-01</td>
<td><a href="/alerts/7">Falsified Vaccine</a></td>
<td><a href="/share">share</a></td></tr>
</table>`

	stubs, err := Parse(html, notices.CategoryAlert, "https://fdaghana.gov.gh/newsroom/public-alerts/")
	require.NoError(t, err)
	require.Len(t, stubs, 1)
	require.Equal(t, "https://fdaghana.gov.gh/alerts/7", stubs[0].DetailURL)
}

func TestParse_NoTableIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Parse("<html><body><p>maintenance</p></body></html>",
		notices.CategoryRecall, "https://fdaghana.gov.gh/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "notice table not found")

	// A table missing the date header does not qualify either.
	_, err = Parse(`<table><tr><th>Product Name</th></tr><tr><td>X</td></tr></table>`,
		notices.CategoryRecall, "https://fdaghana.gov.gh/")
	require.Error(t, err)
}

type fakeBrowser struct {
	html      string
	loadErr   error
	expandErr error
	loaded    []string
	expanded  int
}

func (f *fakeBrowser) LoadPage(_ context.Context, url string) error {
	f.loaded = append(f.loaded, url)
	return f.loadErr
}

func (f *fakeBrowser) ExpandPagination(context.Context) error {
	f.expanded++
	return f.expandErr
}

func (f *fakeBrowser) HTML(context.Context) (string, error) {
	return f.html, nil
}

func (f *fakeBrowser) RenderPDF(context.Context, string) ([]byte, error) {
	return nil, errors.New("render not expected during discovery")
}

func (f *fakeBrowser) Close() error { return nil }

func TestDiscover_WalksBrowserInOrder(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{html: recallListingHTML}
	d := New(zap.NewNop())

	stubs, err := d.Discover(context.Background(), b, notices.CategoryRecall,
		"https://fdaghana.gov.gh/newsroom/product-recalls-and-alerts/")
	require.NoError(t, err)
	require.Len(t, stubs, 2)
	require.Equal(t, []string{"https://fdaghana.gov.gh/newsroom/product-recalls-and-alerts/"}, b.loaded)
	require.Equal(t, 1, b.expanded)
}

func TestDiscover_ExpansionFailureAbortsCategory(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{html: recallListingHTML, expandErr: errors.New("select is stuck")}
	d := New(zap.NewNop())

	_, err := d.Discover(context.Background(), b, notices.CategoryRecall, "https://fdaghana.gov.gh/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "select is stuck")
}
