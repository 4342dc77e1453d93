// Package api provides the dashboard REST client.
//
// Endpoints (relative to the dashboard base URL):
//   - GET /metrics: current MetricsSnapshot
//   - GET /stream: text/event-stream of metrics and issue-event frames,
//     consumed by package connection
//
// Default base: http://localhost:8080/api/v1/dashboard
package api
