// Package relay re-publishes the dashboard stream to local consumers.
//
// Routes:
//   - /ws/stream: websocket; current phase, metrics and recent events on
//     connect, then every update as {"event": ..., "data": ...}
//   - /api/snapshot: JSON view of the same state plus manager stats
//   - /health: 200 while the upstream stream is connected, 503 otherwise
//   - /metrics: Prometheus text exposition
package relay
