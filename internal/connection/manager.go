package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/issue-dashboard/internal/clock"
	"github.com/rickgao/issue-dashboard/internal/model"
	"github.com/rickgao/issue-dashboard/internal/stream"
)

// Manager owns the dashboard stream channel and keeps it alive.
type Manager struct {
	cfg       Config
	transport Transport
	state     *stream.State
	clock     clock.Clock
	logger    *slog.Logger

	tasks   chan func()
	done    chan struct{} // closed when Run returns
	running atomic.Bool

	// Owned by the event queue.
	handle       Handle
	gen          uint64 // incremented per opened channel
	retryAllowed bool
	retryTimer   *clock.Timer
	retrySeq     uint64 // invalidates queued retry fires

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the clock used to schedule reconnects.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager creates a Manager publishing into state. Call Run before Start.
func NewManager(cfg Config, transport Transport, state *stream.State, opts ...Option) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BaseURL == "" && cfg.StreamURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	m := &Manager{
		cfg:       cfg,
		transport: transport,
		state:     state,
		clock:     clock.Real(),
		logger:    slog.Default(),
		tasks:     make(chan func(), cfg.QueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Run executes the event queue until ctx is cancelled. On return the open
// channel is closed, any pending retry is cancelled and the phase is
// disconnected. Run may only be called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)

	m.logger.Info("stream manager running", "url", m.cfg.URL())

	for {
		select {
		case <-ctx.Done():
			m.stop()
			m.logger.Info("stream manager stopped")
			return nil
		case task := <-m.tasks:
			task()
		}
	}
}

// Start opens the stream unless a channel is already open or opening.
// Progress is reported through the phase feed.
func (m *Manager) Start() {
	m.call(m.start)
}

// Stop closes the stream and disables reconnects until the next Start. When
// Stop returns no reconnect can fire.
func (m *Manager) Stop() {
	m.call(m.stop)
}

// OfferMetrics publishes a snapshot obtained outside the stream, such as a
// REST poll, on the event queue. It is published only if no snapshot is held
// or it is strictly newer than the current one, so it never replaces fresher
// stream data. It returns false if the snapshot was rejected or Run has
// exited.
func (m *Manager) OfferMetrics(snap model.MetricsSnapshot) bool {
	var published bool
	m.call(func() {
		published = m.state.OfferMetrics(snap)
	})
	return published
}

// Phase returns the current connection phase.
func (m *Manager) Phase() model.ConnectionPhase {
	return m.state.CurrentPhase()
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	s := m.stats
	m.statsMu.Unlock()
	s.Phase = m.state.CurrentPhase()
	return s
}

// call runs fn on the event queue and waits for it.
func (m *Manager) call(fn func()) {
	finished := make(chan struct{})
	task := func() {
		fn()
		close(finished)
	}

	select {
	case m.tasks <- task:
	case <-m.done:
		return
	}
	select {
	case <-finished:
	case <-m.done:
	}
}

// post queues fn without waiting.
func (m *Manager) post(fn func()) {
	select {
	case m.tasks <- fn:
	case <-m.done:
	}
}

// -----------------------------------------------------------------------------
// Event queue handlers
// -----------------------------------------------------------------------------

func (m *Manager) start() {
	if m.handle != nil {
		return
	}

	m.retryAllowed = true
	m.cancelRetry()
	m.setPhase(model.PhaseConnecting)

	m.gen++
	l := &channelListener{m: m, gen: m.gen}
	m.handle = m.transport.Open(m.cfg.URL(), l)

	m.updateStats(func(s *Stats) {
		s.Opens++
		s.ChannelID = m.handle.ID()
	})
	m.logger.Info("opening stream", "channel_id", m.handle.ID(), "url", m.cfg.URL())
}

func (m *Manager) stop() {
	m.retryAllowed = false
	m.cancelRetry()

	if m.handle != nil {
		m.logger.Info("closing stream", "channel_id", m.handle.ID())
		m.discardHandle()
	}
	m.setPhase(model.PhaseDisconnected)
}

func (m *Manager) handleOpen(gen uint64) {
	if !m.current(gen) {
		return
	}
	m.setPhase(model.PhaseConnected)
	m.logger.Info("stream connected", "channel_id", m.handle.ID())
}

func (m *Manager) handleFrame(gen uint64, name string, payload []byte) {
	if !m.current(gen) {
		return
	}

	switch name {
	case FrameMetrics:
		metrics, err := model.DecodeMetrics(payload)
		if err != nil {
			m.dropFrame(name, payload, err)
			return
		}
		m.state.PublishMetrics(metrics)

	case FrameIssueEvent:
		event, err := model.DecodeIssueEvent(payload)
		if err != nil {
			m.dropFrame(name, payload, err)
			return
		}
		m.state.PublishEvent(event)

	default:
		m.updateStats(func(s *Stats) { s.FramesIgnored++ })
		m.logger.Debug("ignoring unrecognized frame", "frame", name)
		return
	}

	now := m.clock.Now()
	m.updateStats(func(s *Stats) {
		s.FramesReceived++
		s.LastFrameAt = now
	})
}

func (m *Manager) handleError(gen uint64, err error) {
	if !m.current(gen) {
		return
	}

	m.logger.Warn("stream error",
		"channel_id", m.handle.ID(),
		"error", err,
	)
	m.updateStats(func(s *Stats) { s.TransportErrors++ })

	m.discardHandle()
	m.setPhase(model.PhaseDisconnected)

	if m.retryAllowed {
		m.scheduleRetry()
	}
}

// handleRetry reopens the stream unless the timer was superseded, Stop ran,
// or a channel is already open.
func (m *Manager) handleRetry(seq uint64) {
	if seq != m.retrySeq || m.retryTimer == nil {
		m.logger.Debug("skipping stale reconnect")
		return
	}
	m.retryTimer = nil

	if !m.retryAllowed || m.handle != nil {
		m.logger.Debug("skipping reconnect", "retry_allowed", m.retryAllowed)
		return
	}

	m.logger.Info("attempting reconnection")
	m.updateStats(func(s *Stats) { s.Reconnects++ })
	m.start()
}

// -----------------------------------------------------------------------------
// Helpers (event queue only)
// -----------------------------------------------------------------------------

func (m *Manager) current(gen uint64) bool {
	return m.handle != nil && gen == m.gen
}

func (m *Manager) discardHandle() {
	if err := m.handle.Close(); err != nil {
		m.logger.Debug("close stream", "channel_id", m.handle.ID(), "error", err)
	}
	m.handle = nil
	m.updateStats(func(s *Stats) { s.ChannelID = "" })
}

func (m *Manager) scheduleRetry() {
	m.retrySeq++
	seq := m.retrySeq
	m.retryTimer = m.clock.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.post(func() { m.handleRetry(seq) })
	})
	m.logger.Info("reconnect scheduled", "retry_in", m.cfg.ReconnectDelay)
}

func (m *Manager) cancelRetry() {
	if m.retryTimer == nil {
		return
	}
	m.retryTimer.Stop()
	m.retryTimer = nil
	m.retrySeq++
}

// setPhase publishes p if it differs from the current phase.
func (m *Manager) setPhase(p model.ConnectionPhase) {
	if m.state.CurrentPhase() == p {
		return
	}
	m.state.PublishPhase(p)
}

func (m *Manager) dropFrame(name string, payload []byte, err error) {
	m.updateStats(func(s *Stats) { s.FramesMalformed++ })
	m.logger.Warn("dropping malformed frame",
		"frame", name,
		"size", len(payload),
		"error", err,
	)
}

func (m *Manager) updateStats(fn func(*Stats)) {
	m.statsMu.Lock()
	fn(&m.stats)
	m.statsMu.Unlock()
}

// channelListener forwards one channel's callbacks onto the event queue.
type channelListener struct {
	m   *Manager
	gen uint64
}

func (l *channelListener) OnOpen() {
	l.m.post(func() { l.m.handleOpen(l.gen) })
}

func (l *channelListener) OnFrame(name string, payload []byte) {
	l.m.post(func() { l.m.handleFrame(l.gen, name, payload) })
}

func (l *channelListener) OnError(err error) {
	l.m.post(func() { l.m.handleError(l.gen, err) })
}
