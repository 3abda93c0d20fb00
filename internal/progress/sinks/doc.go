// Package sinks implements the concrete progress consumers: Prometheus
// collectors, the persistent run ledger, and structured logging. Each sink
// satisfies progress.Sink and tolerates repeated Consume/Close cycles.
package sinks
