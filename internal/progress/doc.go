// Package progress carries scrape milestones from the orchestrator to
// pluggable sinks. A non-blocking hub batches events on a background
// goroutine and fans them out to consumers such as Prometheus collectors,
// the run ledger, and structured logs.
package progress
