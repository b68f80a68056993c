// Package middleware provides HTTP middleware for the media server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labeled by route template
//   - Configurable filtering for segment fetches and health checks
//
// Both response writer wrappers pass through Flush and Hijack so
// progressive streams and the event websocket keep working behind them.
package middleware
