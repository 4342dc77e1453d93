package stream

import "github.com/rickgao/issue-dashboard/internal/model"

// State holds the three dashboard feeds. The connection manager is the only
// writer; any number of consumers may subscribe, including from inside a
// callback. Callbacks must not publish.
type State struct {
	metrics Latest[model.MetricsSnapshot]
	events  Events[model.IssueEvent]
	phase   *Latest[model.ConnectionPhase]
}

// NewState returns a State with no metrics and the phase set to disconnected.
func NewState() *State {
	return &State{
		phase: NewLatest(model.PhaseDisconnected),
	}
}

// PublishMetrics replaces the current metrics snapshot.
func (s *State) PublishMetrics(m model.MetricsSnapshot) { s.metrics.Publish(m) }

// OfferMetrics publishes m only if no snapshot is held yet or m is strictly
// newer than the current one. It reports whether m was published.
func (s *State) OfferMetrics(m model.MetricsSnapshot) bool {
	return s.metrics.PublishIf(m, func(cur model.MetricsSnapshot) bool {
		return m.Timestamp.After(cur.Timestamp)
	})
}

// SubscribeMetrics delivers the current snapshot, if any, then every new one.
func (s *State) SubscribeMetrics(fn func(model.MetricsSnapshot)) (unsubscribe func()) {
	return s.metrics.Subscribe(fn)
}

// CurrentMetrics returns the latest snapshot. ok is false until the first publish.
func (s *State) CurrentMetrics() (m model.MetricsSnapshot, ok bool) { return s.metrics.Current() }

// PublishEvent delivers an issue event to current subscribers.
func (s *State) PublishEvent(e model.IssueEvent) { s.events.Publish(e) }

// SubscribeEvents delivers issue events published after the call.
func (s *State) SubscribeEvents(fn func(model.IssueEvent)) (unsubscribe func()) {
	return s.events.Subscribe(fn)
}

// PublishPhase sets the connection phase.
func (s *State) PublishPhase(p model.ConnectionPhase) { s.phase.Publish(p) }

// SubscribePhase delivers the current phase, then every change.
func (s *State) SubscribePhase(fn func(model.ConnectionPhase)) (unsubscribe func()) {
	return s.phase.Subscribe(fn)
}

// CurrentPhase returns the current connection phase.
func (s *State) CurrentPhase() model.ConnectionPhase {
	p, _ := s.phase.Current()
	return p
}
