package connection

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rickgao/issue-dashboard/internal/model"
)

// Errors
var (
	ErrStreamClosed     = errors.New("stream closed by server")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrAlreadyRunning   = errors.New("manager already running")
)

// Frame names recognized on the stream.
const (
	FrameMetrics    = "metrics"
	FrameIssueEvent = "issue-event"
	FrameConnection = "connection" // relay only; ignored by the manager
)

// Listener receives the callbacks of one channel. Callbacks for a channel
// are never invoked concurrently with each other.
type Listener interface {
	// OnOpen is called once the channel is live.
	OnOpen()

	// OnFrame is called for every named frame, in arrival order.
	OnFrame(name string, payload []byte)

	// OnError is called at most once, when the channel fails. No further
	// callbacks follow.
	OnError(err error)
}

// Handle is an open (or opening) channel.
type Handle interface {
	// ID identifies the channel in logs.
	ID() string

	// Close tears the channel down. No callbacks are delivered after Close
	// returns, except ones already in flight.
	Close() error
}

// Transport opens push channels. Open must not block on the network:
// connection progress is reported through the Listener.
type Transport interface {
	Open(url string, l Listener) Handle
}

// Envelope is the WebSocket framing used by the relay.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Default values.
const (
	DefaultBaseURL        = "http://localhost:8080/api/v1/dashboard"
	DefaultReconnectDelay = 5 * time.Second
	DefaultQueueSize      = 1024
)

// Config configures the Manager.
type Config struct {
	BaseURL        string        // Dashboard API base (e.g., http://localhost:8080/api/v1/dashboard)
	StreamURL      string        // Overrides BaseURL + "/stream" when set
	ReconnectDelay time.Duration // Fixed wait between a transport error and the next attempt
	QueueSize      int           // Event queue capacity
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		ReconnectDelay: DefaultReconnectDelay,
		QueueSize:      DefaultQueueSize,
	}
}

// URL returns the stream endpoint.
func (c Config) URL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}
	return strings.TrimRight(c.BaseURL, "/") + "/stream"
}

// Stats provides statistics about the connection manager.
type Stats struct {
	Phase           model.ConnectionPhase `json:"phase"`
	ChannelID       string                `json:"channelId,omitempty"` // Empty when no channel is open
	Opens           int64                 `json:"opens"`               // Channels opened (initial + reconnects)
	Reconnects      int64                 `json:"reconnects"`          // Channels opened by the retry timer
	TransportErrors int64                 `json:"transportErrors"`
	FramesReceived  int64                 `json:"framesReceived"`  // Frames routed to a feed
	FramesMalformed int64                 `json:"framesMalformed"` // Frames dropped because the payload did not decode
	FramesIgnored   int64                 `json:"framesIgnored"`   // Frames with an unrecognized name
	LastFrameAt     time.Time             `json:"lastFrameAt"`
}
