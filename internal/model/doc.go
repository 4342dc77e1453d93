// Package model defines the value objects carried by the dashboard stream.
//
// All types mirror the JSON documents served by the dashboard API under
// /api/v1/dashboard (GET /metrics and the "metrics" / "issue-event" frames of
// GET /stream).
//
// Conventions:
//   - Counts: int64, never negative
//   - Timestamps: time.Time, RFC 3339 on the wire
//   - IDs: opaque strings (the server happens to send UUIDs)
package model
