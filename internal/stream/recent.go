package stream

import (
	"sync"

	"github.com/rickgao/issue-dashboard/internal/model"
)

// DefaultRecentEvents is how many events a dashboard keeps on screen.
const DefaultRecentEvents = 10

// RecentEvents is a bounded, newest-first window over the event feed. It is a
// consumer-side policy: the feed itself is unbounded.
type RecentEvents struct {
	mu     sync.RWMutex
	size   int
	buf    []model.IssueEvent // ring, len == size once full
	next   int                // slot for the next event
	filled int
}

// NewRecentEvents creates a window holding at most size events. size < 1
// falls back to DefaultRecentEvents.
func NewRecentEvents(size int) *RecentEvents {
	if size < 1 {
		size = DefaultRecentEvents
	}
	return &RecentEvents{
		size: size,
		buf:  make([]model.IssueEvent, size),
	}
}

// Attach subscribes the window to the event feed of s.
func (r *RecentEvents) Attach(s *State) (detach func()) {
	return s.SubscribeEvents(r.Add)
}

// Add records e as the newest event, evicting the oldest when full.
func (r *RecentEvents) Add(e model.IssueEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = e
	r.next = (r.next + 1) % r.size
	if r.filled < r.size {
		r.filled++
	}
}

// List returns the retained events, newest first.
func (r *RecentEvents) List() []model.IssueEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.IssueEvent, 0, r.filled)
	for i := 1; i <= r.filled; i++ {
		idx := (r.next - i + r.size) % r.size
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of retained events.
func (r *RecentEvents) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filled
}
