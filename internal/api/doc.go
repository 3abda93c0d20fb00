// Package api hosts the scraper's debug HTTP server. Notable routes:
//   - GET /healthz and /readyz for liveness and database-backed readiness.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/stats for read-only run history and notice counts.
//
// The server never mutates anything; scrapes are started from the CLI, not
// over HTTP.
package api
