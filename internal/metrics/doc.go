// Package metrics provides Prometheus instrumentation for the media server.
//
// All metrics are registered with promauto on the default registry and are
// prefixed with "media_server_". They are grouped by concern:
//
//   - HTTP: request counts, durations and in-flight requests
//   - Probe: ffprobe outcomes, durations and cache tiers
//   - Delivery: direct / progressive / segmented decisions, range outcomes
//   - Encoder: job counts, durations, running processes, slot waits
//   - Sessions: active sessions, preload loops, generated and evicted segments
//   - Preview, filesystem retry and event hub counters
//
// Gauges that describe aggregate state (sessions, segment cache size) are
// refreshed by a Collector polling a StatsProvider; everything else is
// updated inline by the package that owns the operation.
package metrics
