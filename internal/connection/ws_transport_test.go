package connection

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeEnvelope(conn *websocket.Conn, event, data string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"`+event+`","data":`+data+`}`))
}

func TestWSTransport_Frames(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		writeEnvelope(conn, FrameConnection, `"connected"`)
		writeEnvelope(conn, FrameMetrics, metricsJSON)
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		writeEnvelope(conn, FrameIssueEvent, eventJSON)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})
	defer server.Close()

	l := newRecordingListener()
	h := NewWSTransport(DefaultWSConfig(), testLogger()).Open(wsURL(server), l)
	defer h.Close()

	if ev := l.next(t); ev.kind != "open" {
		t.Fatalf("first callback = %+v, want open", ev)
	}

	want := []listenerEvent{
		{kind: "frame", name: FrameConnection, payload: `"connected"`},
		{kind: "frame", name: FrameMetrics, payload: metricsJSON},
		{kind: "frame", name: FrameIssueEvent, payload: eventJSON},
	}
	for i, w := range want {
		ev := l.next(t)
		if ev.kind != w.kind || ev.name != w.name || ev.payload != w.payload {
			t.Errorf("frame %d = %+v, want %+v", i, ev, w)
		}
	}

	ev := l.next(t)
	if ev.kind != "error" || !websocket.IsCloseError(ev.err, websocket.CloseNormalClosure) {
		t.Errorf("last callback = %+v, want normal close error", ev)
	}
}

func TestWSTransport_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	l := newRecordingListener()
	h := NewWSTransport(DefaultWSConfig(), testLogger()).Open(wsURL(server), l)
	defer h.Close()

	if ev := l.next(t); ev.kind != "error" {
		t.Fatalf("callback = %+v, want error", ev)
	}
	l.expectNone(t, 50*time.Millisecond)
}

func TestWSTransport_StaleConnection(t *testing.T) {
	release := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-release
	})
	defer server.Close()
	defer close(release)

	cfg := DefaultWSConfig()
	cfg.PingTimeout = 50 * time.Millisecond

	l := newRecordingListener()
	h := NewWSTransport(cfg, testLogger()).Open(wsURL(server), l)
	defer h.Close()

	if ev := l.next(t); ev.kind != "open" {
		t.Fatalf("callback = %+v, want open", ev)
	}
	ev := l.next(t)
	if ev.kind != "error" || !errors.Is(ev.err, ErrStaleConnection) {
		t.Errorf("callback = %+v, want ErrStaleConnection", ev)
	}
}

func TestWSTransport_PingExtendsDeadline(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 4; i++ {
			time.Sleep(40 * time.Millisecond)
			if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
				return
			}
		}
		writeEnvelope(conn, FrameMetrics, metricsJSON)
		time.Sleep(50 * time.Millisecond)
	})
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.PingTimeout = 100 * time.Millisecond

	l := newRecordingListener()
	h := NewWSTransport(cfg, testLogger()).Open(wsURL(server), l)
	defer h.Close()

	if ev := l.next(t); ev.kind != "open" {
		t.Fatalf("callback = %+v, want open", ev)
	}
	if ev := l.next(t); ev.kind != "frame" || ev.name != FrameMetrics {
		t.Fatalf("callback = %+v, want metrics frame after pings", ev)
	}
}

func TestWSTransport_DoubleClose(t *testing.T) {
	release := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		select {
		case <-release:
		case <-time.After(time.Second):
		}
	})
	defer server.Close()
	defer close(release)

	l := newRecordingListener()
	h := NewWSTransport(DefaultWSConfig(), testLogger()).Open(wsURL(server), l)

	if ev := l.next(t); ev.kind != "open" {
		t.Fatalf("callback = %+v, want open", ev)
	}

	// First close should succeed
	if err := h.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	// Second close should be no-op
	if err := h.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	l.expectNone(t, 100*time.Millisecond)
}

func TestNewTransport(t *testing.T) {
	ws := WSConfig{HandshakeTimeout: time.Second, PingTimeout: 7 * time.Second}

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: "sse"},
		{name: TransportSSE, want: "sse"},
		{name: TransportWebSocket, want: "websocket"},
		{name: "grpc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.name, ws, nil)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewTransport(%q) should fail", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTransport(%q): %v", tt.name, err)
			}

			switch got := tr.(type) {
			case *SSETransport:
				if tt.want != "sse" {
					t.Errorf("got SSE transport, want %s", tt.want)
				}
			case *WSTransport:
				if tt.want != "websocket" {
					t.Errorf("got websocket transport, want %s", tt.want)
				}
				if got.cfg.PingTimeout != 7*time.Second {
					t.Errorf("PingTimeout = %v, want 7s", got.cfg.PingTimeout)
				}
			default:
				t.Errorf("unexpected transport %T", tr)
			}
		})
	}
}
