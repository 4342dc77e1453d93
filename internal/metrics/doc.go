// Package metrics renders dashboard client state as Prometheus text exposition.
//
// Key metrics:
//   - Stream phase, channel opens, reconnects and transport errors
//   - Frames received, dropped as malformed and ignored
//   - Latest dashboard counters (total, open, by status/category/priority)
//   - Connected relay clients
package metrics
