package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/issue-dashboard/internal/model"
	"github.com/rickgao/issue-dashboard/internal/stream"
)

// MetricsFetcher fetches a dashboard snapshot. *api.Client implements it.
type MetricsFetcher interface {
	GetMetrics(ctx context.Context) (*model.MetricsSnapshot, error)
}

// MetricsSink accepts polled snapshots. It publishes a snapshot only if it
// is newer than the current one, checking and publishing atomically.
// *connection.Manager and *stream.State implement it.
type MetricsSink interface {
	OfferMetrics(m model.MetricsSnapshot) bool
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval while disconnected (default: 30s)
	Timeout  time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Stats provides statistics about the poller.
type Stats struct {
	Polls     int64 // Fetches attempted
	Published int64 // Snapshots published to the metrics feed
	Stale     int64 // Snapshots not newer than the current one
	Skipped   int64 // Ticks skipped because the stream was connected
	Errors    int64
}

// Poller fills the metrics feed from the REST API when the stream cannot.
type Poller struct {
	cfg    Config
	client MetricsFetcher
	state  *stream.State
	sink   MetricsSink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	polls, published, stale, skipped, errors atomic.Int64
}

// New creates a new Poller. state is read to decide whether the stream is
// live; polled snapshots go to sink, or straight to state if sink is nil.
func New(cfg Config, client MetricsFetcher, state *stream.State, sink MetricsSink, logger *slog.Logger) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if sink == nil {
		sink = state
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		client: client,
		state:  state,
		sink:   sink,
		logger: logger,
	}
}

// Start begins the polling loop. The first fetch happens immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("metrics poller started", "interval", p.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("metrics poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:     p.polls.Load(),
		Published: p.published.Load(),
		Stale:     p.stale.Load(),
		Skipped:   p.skipped.Load(),
		Errors:    p.errors.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll fetches one snapshot unless the stream is live and already delivered
// metrics.
func (p *Poller) poll() {
	if p.live() {
		p.skipped.Add(1)
		p.logger.Debug("stream connected, skipping metrics poll")
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	p.polls.Add(1)
	m, err := p.client.GetMetrics(ctx)
	if err != nil {
		if p.ctx.Err() != nil {
			return
		}
		p.errors.Add(1)
		p.logger.Warn("failed to poll metrics", "error", err)
		return
	}

	// The stream may have delivered a newer snapshot while the request was
	// in flight; the sink keeps whichever is newer.
	if !p.sink.OfferMetrics(*m) {
		p.stale.Add(1)
		p.logger.Debug("polled metrics not newer than current", "polled_at", m.Timestamp)
		return
	}

	p.published.Add(1)
	p.logger.Debug("published polled metrics", "total_issues", m.TotalIssues)
}

func (p *Poller) live() bool {
	if p.state.CurrentPhase() != model.PhaseConnected {
		return false
	}
	_, ok := p.state.CurrentMetrics()
	return ok
}
