package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
	"github.com/regwatch/fda-notice-scraper/internal/store"
)

type fakeReader struct {
	pingErr  error
	stats    store.Stats
	statsErr error
	runs     []store.RunRecord
	runsErr  error
	gotLimit int
}

func (f *fakeReader) Ping(context.Context) error { return f.pingErr }

func (f *fakeReader) Stats(context.Context) (store.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeReader) RecentRuns(_ context.Context, limit int) ([]store.RunRecord, error) {
	f.gotLimit = limit
	return f.runs, f.runsErr
}

func newTestServer(reader Reader) *Server {
	return NewServer(reader, prometheus.NewRegistry(), zap.NewNop())
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz_OK(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{})
	rec := doGet(t, server, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz_DatabaseDown(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{pingErr: errors.New("connection refused")})
	rec := doGet(t, server, "/readyz")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "database unreachable")
}

func TestServer_Readyz_OK(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{})
	rec := doGet(t, server, "/readyz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ready"`)
}

func TestServer_ListRuns_ReturnsNewestFirst(t *testing.T) {
	t.Parallel()

	finished := time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)
	errText := "listing fetch failed"
	reader := &fakeReader{
		runs: []store.RunRecord{
			{
				ID:         uuid.MustParse("018f34a2-6c1d-7e6f-b1b0-8d1f6f4f4a11"),
				Category:   notices.CategoryRecall,
				StartedAt:  time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC),
				Status:     notices.RunCompleted,
				Succeeded:  5,
				Fallback:   1,
				Failed:     0,
				FinishedAt: &finished,
			},
			{
				ID:        uuid.MustParse("018f34a2-6c1d-7e6f-b1b0-8d1f6f4f4a12"),
				Category:  notices.CategoryAlert,
				StartedAt: time.Date(2024, 5, 19, 9, 0, 0, 0, time.UTC),
				Status:    notices.RunFailed,
				ErrorText: &errText,
			},
		},
	}
	server := newTestServer(reader)
	rec := doGet(t, server, "/v1/runs")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, defaultRunLimit, reader.gotLimit)

	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	require.Equal(t, "recall", body.Runs[0].Category)
	require.Equal(t, "completed", body.Runs[0].Status)
	require.NotNil(t, body.Runs[0].FinishedAt)
	require.Equal(t, 5, body.Runs[0].Succeeded)
	require.Equal(t, "failed", body.Runs[1].Status)
	require.NotNil(t, body.Runs[1].Error)
	require.Equal(t, "listing fetch failed", *body.Runs[1].Error)
	require.Nil(t, body.Runs[1].FinishedAt)
}

func TestServer_ListRuns_LimitValidation(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	server := newTestServer(reader)

	rec := doGet(t, server, "/v1/runs?limit=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, server, "/v1/runs?limit=-3")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, server, "/v1/runs?limit=9999")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxRunLimit, reader.gotLimit)
}

func TestServer_ListRuns_StoreError(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{runsErr: errors.New("boom")})
	rec := doGet(t, server, "/v1/runs")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "failed to list runs")
}

func TestServer_GetStats_CountsByType(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReader{
		stats: store.Stats{
			Total: 10,
			ByType: map[notices.Category]int64{
				notices.CategoryRecall:       5,
				notices.CategoryAlert:        3,
				notices.CategoryPressRelease: 2,
			},
		},
	})
	rec := doGet(t, server, "/v1/stats")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total  int64            `json:"total"`
		ByType map[string]int64 `json:"by_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(10), body.Total)
	require.Equal(t, int64(5), body.ByType["recall"])
	require.Equal(t, int64(2), body.ByType["press_release"])
}

func TestServer_NilReader_Returns503(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil)
	for _, path := range []string{"/readyz", "/v1/runs", "/v1/stats"} {
		rec := doGet(t, server, path)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestServer_Metrics_ServesRegistry(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	server := NewServer(&fakeReader{}, registry, zap.NewNop())

	// Warm the request counters with one probe hit first.
	rec := doGet(t, server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doGet(t, server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scraper_http_requests_total")

	count := testutil.ToFloat64(server.metrics.requests.WithLabelValues(http.MethodGet, "/healthz", "200"))
	require.Equal(t, 1.0, count)
}
