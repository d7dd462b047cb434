// Package observability provides structured logging, Prometheus metrics,
// the health/metrics HTTP endpoint, and OpenTelemetry tracing bootstrap for
// the curlens data plane.
//
// The logger is a thin wrapper over log/slog emitting JSON. Context helpers
// carry the query id and materializer run id so every log line produced while
// serving a query or building a view can be correlated.
//
// Metrics cover the query plane (count and latency by data source and
// status), the transfer plane (files and bytes synced), and the materializer
// (views built, run duration). They are served together with liveness and
// readiness probes on a dedicated port, separate from any caller-facing
// surface.
package observability
