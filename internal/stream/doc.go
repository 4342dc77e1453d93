// Package stream holds the feeds the connection manager publishes into.
//
// A feed is an observable sequence of values with one of two delivery
// semantics:
//   - Latest: remembers the most recent value and replays it to each new
//     subscriber (metrics snapshot, connection phase).
//   - Events: delivers each value once, only to subscribers present at
//     publish time (issue events).
//
// Publish fans out synchronously: every current subscriber has been called
// before Publish returns. Deliveries on one feed never interleave.
// Subscriber callbacks must not block and must not subscribe to the same
// feed from inside the callback.
package stream
