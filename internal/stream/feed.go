package stream

import (
	"slices"
	"sync"
)

// subscriber wraps one callback. mu serializes deliveries to it and last
// holds the sequence number of the newest value it has seen, so a replay
// racing a publish is never delivered out of order.
type subscriber[T any] struct {
	fn   func(T)
	mu   sync.Mutex
	last uint64
}

func (s *subscriber[T]) deliver(seq uint64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.last {
		return
	}
	s.last = seq
	s.fn(v)
}

// subscribers is the registry shared by both feed kinds.
type subscribers[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber[T]
}

// add registers fn. Caller holds mu.
func (s *subscribers[T]) add(fn func(T)) (uint64, *subscriber[T]) {
	if s.subs == nil {
		s.subs = make(map[uint64]*subscriber[T])
	}
	s.nextID++
	sub := &subscriber[T]{fn: fn}
	s.subs[s.nextID] = sub
	return s.nextID, sub
}

// remove returns an idempotent unsubscribe func for id.
func (s *subscribers[T]) remove(id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// snapshot copies the current subscribers in subscription order. Caller holds mu.
func (s *subscribers[T]) snapshot() []*subscriber[T] {
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*subscriber[T], len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}

// Latest is a latest-value feed. The zero value is ready to use and holds
// no value.
//
// Subscribe and unsubscribe may be called from inside a callback. Publish
// may not: publishing from a subscriber of the same feed deadlocks.
type Latest[T any] struct {
	publishMu sync.Mutex // serializes Publish fan-out
	subs      subscribers[T]
	value     T
	has       bool
	seq       uint64 // of value
}

// NewLatest returns a feed that already holds initial.
func NewLatest[T any](initial T) *Latest[T] {
	return &Latest[T]{value: initial, has: true, seq: 1}
}

// Publish stores v and delivers it to every current subscriber.
func (f *Latest[T]) Publish(v T) {
	f.PublishIf(v, nil)
}

// PublishIf stores and delivers v only if the feed is empty or accept
// returns true for the current value. The check and the store happen under
// one lock. A nil accept always publishes.
func (f *Latest[T]) PublishIf(v T, accept func(current T) bool) bool {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	f.subs.mu.Lock()
	if accept != nil && f.has && !accept(f.value) {
		f.subs.mu.Unlock()
		return false
	}
	f.seq++
	f.value, f.has = v, true
	seq := f.seq
	subs := f.subs.snapshot()
	f.subs.mu.Unlock()

	for _, s := range subs {
		s.deliver(seq, v)
	}
	return true
}

// Subscribe registers fn. If the feed holds a value, fn receives it before
// Subscribe returns. The returned func removes the subscription.
func (f *Latest[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.subs.mu.Lock()
	id, sub := f.subs.add(fn)
	v, has, seq := f.value, f.has, f.seq
	f.subs.mu.Unlock()

	if has {
		sub.deliver(seq, v)
	}
	return f.subs.remove(id)
}

// Current returns the most recently published value.
func (f *Latest[T]) Current() (T, bool) {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	return f.value, f.has
}

// Events is an event-at-a-time feed. The zero value is ready to use.
// Subscribe may be called from inside a callback; Publish may not.
type Events[T any] struct {
	publishMu sync.Mutex
	subs      subscribers[T]
	seq       uint64
}

// Publish delivers v to every current subscriber. Nothing is retained.
func (f *Events[T]) Publish(v T) {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	f.subs.mu.Lock()
	f.seq++
	seq := f.seq
	subs := f.subs.snapshot()
	f.subs.mu.Unlock()

	for _, s := range subs {
		s.deliver(seq, v)
	}
}

// Subscribe registers fn for values published from now on.
func (f *Events[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.subs.mu.Lock()
	id, _ := f.subs.add(fn)
	f.subs.mu.Unlock()
	return f.subs.remove(id)
}

// Len returns the number of active subscribers.
func (f *Events[T]) Len() int {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	return len(f.subs.subs)
}
