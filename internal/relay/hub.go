package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/issue-dashboard/internal/connection"
	"github.com/rickgao/issue-dashboard/internal/model"
	"github.com/rickgao/issue-dashboard/internal/stream"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the client as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultSendBuffer is the per-client outgoing message depth.
	DefaultSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS belongs to the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConnectionStatus is the data of a "connection" message.
type ConnectionStatus struct {
	Phase model.ConnectionPhase `json:"phase"`
}

// Hub mirrors a stream.State to websocket clients. It keeps its own copy of
// the latest phase, metrics and recent events, updated under the same lock
// that registers clients, so a new client never misses or repeats an update.
type Hub struct {
	logger     *slog.Logger
	sendBuffer int
	recentSize int

	mu      sync.Mutex
	clients map[*client]struct{}
	phase   model.ConnectionPhase
	metrics *model.MetricsSnapshot
	recent  *stream.RecentEvents
}

// client represents one connected websocket client.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub that replays up to recentEvents events to new clients.
func NewHub(recentEvents, sendBuffer int, logger *slog.Logger) *Hub {
	if sendBuffer < 1 {
		sendBuffer = DefaultSendBuffer
	}
	if recentEvents < 1 {
		recentEvents = stream.DefaultRecentEvents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		sendBuffer: sendBuffer,
		recentSize: recentEvents,
		clients:    make(map[*client]struct{}),
		phase:      model.PhaseDisconnected,
		recent:     stream.NewRecentEvents(recentEvents),
	}
}

// Attach subscribes the hub to all three feeds of s.
func (h *Hub) Attach(s *stream.State) (detach func()) {
	unsubs := []func(){
		s.SubscribePhase(h.onPhase),
		s.SubscribeMetrics(h.onMetrics),
		s.SubscribeEvents(h.onEvent),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer+h.recentSize+2),
	}
	h.register(c)
	defer h.unregister(c)

	h.logger.Debug("relay client connected", "client_id", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	c.readPump() // blocks until the connection closes

	h.logger.Debug("relay client disconnected", "client_id", c.id)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Snapshot is the hub's current view.
type Snapshot struct {
	Connection   model.ConnectionPhase  `json:"connection"`
	Metrics      *model.MetricsSnapshot `json:"metrics"`
	RecentEvents []model.IssueEvent     `json:"recentEvents"` // Newest first
}

// Snapshot returns the current phase, metrics and recent events.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		Connection:   h.phase,
		Metrics:      h.metrics,
		RecentEvents: h.recent.List(),
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// --- feed callbacks ---------------------------------------------------------

func (h *Hub) onPhase(p model.ConnectionPhase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase = p
	h.broadcastLocked(connection.FrameConnection, ConnectionStatus{Phase: p})
}

func (h *Hub) onMetrics(m model.MetricsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = &m
	h.broadcastLocked(connection.FrameMetrics, m)
}

func (h *Hub) onEvent(e model.IssueEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent.Add(e)
	h.broadcastLocked(connection.FrameIssueEvent, e)
}

// --- internal ---------------------------------------------------------------

// register queues the current state for c and adds it to the broadcast set.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	initial := [][]byte{h.encode(connection.FrameConnection, ConnectionStatus{Phase: h.phase})}
	if h.metrics != nil {
		initial = append(initial, h.encode(connection.FrameMetrics, *h.metrics))
	}
	recent := h.recent.List()
	slices.Reverse(recent) // oldest first, as they were published
	for _, e := range recent {
		initial = append(initial, h.encode(connection.FrameIssueEvent, e))
	}

	for _, msg := range initial {
		if msg != nil {
			c.send <- msg // buffer sized for the initial burst
		}
	}
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcastLocked(event string, data any) {
	msg := h.encode(event, data)
	if msg == nil {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Outgoing buffer full; drop the client rather than block the stream.
			h.logger.Warn("relay client too slow, disconnecting", "client_id", c.id)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) encode(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encode relay message", "event", event, "error", err)
		return nil
	}
	msg, err := json.Marshal(connection.Envelope{Event: event, Data: raw})
	if err != nil {
		h.logger.Error("encode relay envelope", "event", event, "error", err)
		return nil
	}
	return msg
}

// writePump drains the send channel to the connection and sends periodic
// pings. Runs in its own goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Removed from the hub.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump processes control frames and detects disconnects. Blocks until the
// connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
