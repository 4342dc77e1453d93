// Package connection implements the stream connection manager.
//
// The Manager:
//   - Owns exactly one push channel to {base}/stream at a time
//   - Routes "metrics" and "issue-event" frames into the stream.State feeds
//   - Reports the connection phase (connecting, connected, disconnected)
//   - Reconnects after a fixed delay (5s) on any transport error, forever,
//     until Stop is called
//
// All transport callbacks, timer callbacks and the bodies of Start and Stop
// run on the manager's single event queue (Run), so the channel handle and
// retry state need no locking.
//
// Transports:
//   - SSETransport: HTTP text/event-stream, the dashboard API's native format
//   - WSTransport: WebSocket carrying {"event", "data"} envelopes, as served
//     by the relay package
package connection
