package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

// MetricsSnapshot is an aggregate view of all issues at a point in time.
//
// The counters are not cross-checked: open + resolved + closed need not add up
// to total. The stream core treats the snapshot as opaque payload.
type MetricsSnapshot struct {
	TotalIssues    int64 `json:"totalIssues"`
	OpenIssues     int64 `json:"openIssues"`
	ResolvedIssues int64 `json:"resolvedIssues"`
	ClosedIssues   int64 `json:"closedIssues"`

	IssuesByStatus   map[string]int64 `json:"issuesByStatus"`
	IssuesByCategory map[string]int64 `json:"issuesByCategory"`
	IssuesByPriority map[string]int64 `json:"issuesByPriority"` // keys "1".."5"

	// Short-window counters, absent on older servers.
	IssuesCreatedLast5Minutes  *int64 `json:"issuesCreatedLast5Minutes,omitempty"`
	IssuesResolvedLast5Minutes *int64 `json:"issuesResolvedLast5Minutes,omitempty"`

	Timestamp time.Time `json:"timestamp"` // Capture time on the server
}

// -----------------------------------------------------------------------------
// Issue events
// -----------------------------------------------------------------------------

// EventType is the kind of lifecycle transition an IssueEvent reports.
type EventType string

const (
	EventCreated         EventType = "CREATED"
	EventStatusChanged   EventType = "STATUS_CHANGED"
	EventResolved        EventType = "RESOLVED"
	EventClosed          EventType = "CLOSED"
	EventAssigned        EventType = "ASSIGNED"
	EventPriorityChanged EventType = "PRIORITY_CHANGED"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventStatusChanged, EventResolved,
		EventClosed, EventAssigned, EventPriorityChanged:
		return true
	}
	return false
}

// UnmarshalText rejects unknown event types.
func (t *EventType) UnmarshalText(text []byte) error {
	v := EventType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown event type %q", string(text))
	}
	*t = v
	return nil
}

// Priority bounds. 1 is the most urgent.
const (
	PriorityCritical = 1
	PriorityVeryLow  = 5
)

// IssueEvent is a single issue lifecycle transition.
type IssueEvent struct {
	IssueID        string    `json:"issueId"`
	EventType      EventType `json:"eventType"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"` // Only for transitions
	Category       string    `json:"category"`
	Priority       int       `json:"priority"` // 1 (critical) .. 5 (very low)
	Timestamp      time.Time `json:"timestamp"`
}

// Validate checks the fields the wire format constrains.
func (e IssueEvent) Validate() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if e.Priority < PriorityCritical || e.Priority > PriorityVeryLow {
		return fmt.Errorf("priority %d out of range [%d, %d]", e.Priority, PriorityCritical, PriorityVeryLow)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Connection phase
// -----------------------------------------------------------------------------

// ConnectionPhase is the lifecycle stage of the streaming connection.
type ConnectionPhase string

const (
	PhaseConnecting   ConnectionPhase = "connecting"
	PhaseConnected    ConnectionPhase = "connected"
	PhaseDisconnected ConnectionPhase = "disconnected"
)

func (p ConnectionPhase) String() string { return string(p) }

// -----------------------------------------------------------------------------
// Wire decoding
// -----------------------------------------------------------------------------

// DecodeMetrics parses a MetricsSnapshot JSON document.
func DecodeMetrics(data []byte) (MetricsSnapshot, error) {
	var m MetricsSnapshot
	if err := json.Unmarshal(data, &m); err != nil {
		return MetricsSnapshot{}, fmt.Errorf("decode metrics: %w", err)
	}
	return m, nil
}

// DecodeIssueEvent parses and validates an IssueEvent JSON document.
func DecodeIssueEvent(data []byte) (IssueEvent, error) {
	var e IssueEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return IssueEvent{}, fmt.Errorf("decode issue event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return IssueEvent{}, fmt.Errorf("decode issue event: %w", err)
	}
	return e, nil
}
