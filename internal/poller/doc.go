// Package poller implements the REST metrics poller.
//
// The poller:
//   - Fetches GET {base}/metrics once on start for the initial paint
//   - Keeps polling on an interval while the stream is not connected
//   - Publishes a snapshot only if it is newer than the one already shown
package poller
