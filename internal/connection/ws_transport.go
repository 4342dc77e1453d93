package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSConfig configures a WebSocket transport.
type WSConfig struct {
	HandshakeTimeout time.Duration // Dial timeout
	PingTimeout      time.Duration // Max time without a ping before the channel is considered stale
	Header           http.Header   // Extra handshake headers
}

// DefaultWSConfig returns sensible defaults. The relay pings every 54s.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}

// Transport names accepted by NewTransport.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// NewTransport returns the transport called name. An empty name selects SSE.
// ws is only used by the WebSocket transport.
func NewTransport(name string, ws WSConfig, logger *slog.Logger) (Transport, error) {
	switch name {
	case "", TransportSSE:
		return NewSSETransport(nil, logger), nil
	case TransportWebSocket:
		return NewWSTransport(ws, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// WSTransport opens WebSocket channels to a relay.
type WSTransport struct {
	cfg    WSConfig
	logger *slog.Logger
}

// NewWSTransport creates a WebSocket transport.
func NewWSTransport(cfg WSConfig, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTransport{cfg: cfg, logger: logger}
}

// Open dials url in the background.
func (t *WSTransport) Open(url string, l Listener) Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &wsHandle{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(ctx, h, url, l)
	return h
}

func (t *WSTransport) run(ctx context.Context, h *wsHandle, url string, l Listener) {
	defer close(h.done)
	logger := t.logger.With("channel_id", h.id)

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	header := http.Header{}
	for k, v := range t.cfg.Header {
		header[k] = v
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		h.fail(l, err)
		return
	}
	if !h.attach(conn) {
		conn.Close()
		return
	}
	defer conn.Close()

	if t.cfg.PingTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(t.cfg.PingTimeout))
		// Server sends ping, we extend the deadline and respond with pong
		conn.SetPingHandler(func(data string) error {
			conn.SetReadDeadline(time.Now().Add(t.cfg.PingTimeout))
			return conn.WriteControl(
				websocket.PongMessage,
				[]byte(data),
				time.Now().Add(time.Second),
			)
		})
	}

	logger.Debug("websocket connected", "url", url)
	if !h.emit(l.OnOpen) {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				err = ErrStaleConnection
			}
			h.fail(l, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			logger.Warn("dropping malformed envelope", "error", err, "size", len(data))
			continue
		}
		if !h.emit(func() { l.OnFrame(env.Event, env.Data) }) {
			return
		}
	}
}

// wsHandle is one WebSocket channel.
type wsHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
}

func (h *wsHandle) ID() string { return h.id }

// attach records the dialed connection. It returns false if Close already ran.
func (h *wsHandle) attach(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.conn = conn
	return true
}

// Close sends a close frame and tears the connection down.
func (h *wsHandle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.cancel()

	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (h *wsHandle) emit(fn func()) bool {
	if h.closed.Load() {
		return false
	}
	fn()
	return true
}

func (h *wsHandle) fail(l Listener, err error) {
	h.emit(func() { l.OnError(err) })
}
