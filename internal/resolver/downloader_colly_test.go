package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDownloadServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 test body"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/files/doc.pdf", http.StatusFound)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no longer published", http.StatusNotFound)
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.UserAgent()))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollyDownloaderFetchesPDF(t *testing.T) {
	t.Parallel()

	srv := newDownloadServer(t)
	d, err := NewCollyDownloader(DownloaderConfig{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	dl, err := d.Download(context.Background(), srv.URL+"/files/doc.pdf")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	require.Contains(t, dl.ContentType, "application/pdf")
	require.True(t, strings.HasPrefix(string(dl.Body), "%PDF"))
	require.Equal(t, srv.URL+"/files/doc.pdf", dl.FinalURL)
}

func TestCollyDownloaderSurfacesDeadTargetStatus(t *testing.T) {
	t.Parallel()

	srv := newDownloadServer(t)
	d, err := NewCollyDownloader(DownloaderConfig{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	dl, err := d.Download(context.Background(), srv.URL+"/gone")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, dl.StatusCode)
}

func TestCollyDownloaderFollowsRedirects(t *testing.T) {
	t.Parallel()

	srv := newDownloadServer(t)
	d, err := NewCollyDownloader(DownloaderConfig{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	dl, err := d.Download(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	require.Equal(t, srv.URL+"/files/doc.pdf", dl.FinalURL)
	require.Contains(t, dl.ContentType, "application/pdf")
}

func TestCollyDownloaderSendsConfiguredUserAgent(t *testing.T) {
	t.Parallel()

	srv := newDownloadServer(t)
	d, err := NewCollyDownloader(DownloaderConfig{
		UserAgent: "regwatch-scraper/1.0",
		Timeout:   5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	dl, err := d.Download(context.Background(), srv.URL+"/ua")
	require.NoError(t, err)
	require.Equal(t, "regwatch-scraper/1.0", string(dl.Body))
}

func TestCollyDownloaderRepeatsSameURL(t *testing.T) {
	t.Parallel()

	srv := newDownloadServer(t)
	d, err := NewCollyDownloader(DownloaderConfig{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	// Retries hit the same URL twice; the shared visit log must not block them.
	for i := 0; i < 2; i++ {
		dl, err := d.Download(context.Background(), srv.URL+"/files/doc.pdf")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, dl.StatusCode)
	}
}

func TestWaitHostBudgetHonorsContext(t *testing.T) {
	t.Parallel()

	d, err := NewCollyDownloader(DownloaderConfig{PerHostRPS: 0.001}, zap.NewNop())
	require.NoError(t, err)

	// First call spends the burst token.
	require.NoError(t, d.waitHostBudget(context.Background(), "https://slow.test/a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.waitHostBudget(ctx, "https://slow.test/b")
	require.Error(t, err)
}
