package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/issue-dashboard/internal/model"
	"github.com/rickgao/issue-dashboard/internal/stream"
)

type listenerEvent struct {
	kind    string // open, frame, error
	name    string
	payload string
	err     error
}

// recordingListener captures transport callbacks on a channel.
type recordingListener struct {
	ch chan listenerEvent
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ch: make(chan listenerEvent, 64)}
}

func (l *recordingListener) OnOpen() { l.ch <- listenerEvent{kind: "open"} }

func (l *recordingListener) OnFrame(name string, payload []byte) {
	l.ch <- listenerEvent{kind: "frame", name: name, payload: string(payload)}
}

func (l *recordingListener) OnError(err error) { l.ch <- listenerEvent{kind: "error", err: err} }

func (l *recordingListener) next(t *testing.T) listenerEvent {
	t.Helper()
	select {
	case ev := <-l.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for transport callback")
		return listenerEvent{}
	}
}

func (l *recordingListener) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-l.ch:
		t.Errorf("unexpected callback %+v", ev)
	case <-time.After(d):
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSSE(w http.ResponseWriter, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestSSETransport_Frames(t *testing.T) {
	var accept atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept.Store(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		writeSSE(w, FrameMetrics, metricsJSON)
		writeSSE(w, FrameIssueEvent, eventJSON)
	}))
	defer server.Close()

	l := newRecordingListener()
	h := NewSSETransport(nil, testLogger()).Open(server.URL+"/stream", l)
	defer h.Close()

	if h.ID() == "" {
		t.Error("handle ID should not be empty")
	}

	if ev := l.next(t); ev.kind != "open" {
		t.Fatalf("first callback = %+v, want open", ev)
	}
	ev := l.next(t)
	if ev.kind != "frame" || ev.name != FrameMetrics || ev.payload != metricsJSON {
		t.Errorf("second callback = %+v, want metrics frame", ev)
	}
	ev = l.next(t)
	if ev.kind != "frame" || ev.name != FrameIssueEvent || ev.payload != eventJSON {
		t.Errorf("third callback = %+v, want issue-event frame", ev)
	}
	ev = l.next(t)
	if ev.kind != "error" || !errors.Is(ev.err, ErrStreamClosed) {
		t.Errorf("last callback = %+v, want ErrStreamClosed", ev)
	}

	if got, _ := accept.Load().(string); got != "text/event-stream" {
		t.Errorf("Accept = %q, want text/event-stream", got)
	}
}

func TestSSETransport_AnySuccessStatusOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusAccepted)
		writeSSE(w, FrameMetrics, metricsJSON)
	}))
	defer server.Close()

	l := newRecordingListener()
	h := NewSSETransport(nil, testLogger()).Open(server.URL+"/stream", l)
	defer h.Close()

	if ev := l.next(t); ev.kind != "open" {
		t.Fatalf("first callback = %+v, want open", ev)
	}
	if ev := l.next(t); ev.kind != "frame" || ev.name != FrameMetrics {
		t.Errorf("second callback = %+v, want metrics frame", ev)
	}
}

func TestSSETransport_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	l := newRecordingListener()
	h := NewSSETransport(nil, testLogger()).Open(server.URL, l)
	defer h.Close()

	ev := l.next(t)
	if ev.kind != "error" || !errors.Is(ev.err, ErrUnexpectedStatus) {
		t.Fatalf("callback = %+v, want ErrUnexpectedStatus", ev)
	}
	l.expectNone(t, 50*time.Millisecond)
}

func TestSSETransport_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	l := newRecordingListener()
	h := NewSSETransport(nil, testLogger()).Open(url, l)
	defer h.Close()

	if ev := l.next(t); ev.kind != "error" {
		t.Fatalf("callback = %+v, want error", ev)
	}
}

func TestSSETransport_CloseSuppressesCallbacks(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, FrameMetrics, metricsJSON)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	l := newRecordingListener()
	h := NewSSETransport(nil, testLogger()).Open(server.URL, l)

	if ev := l.next(t); ev.kind != "open" {
		t.Fatalf("callback = %+v, want open", ev)
	}
	if ev := l.next(t); ev.kind != "frame" {
		t.Fatalf("callback = %+v, want frame", ev)
	}

	if err := h.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	// The cancelled read would otherwise surface as an error.
	l.expectNone(t, 100*time.Millisecond)
}

func TestManager_SSEReconnect(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, FrameMetrics, fmt.Sprintf(`{"totalIssues":%d}`, n))
	}))
	defer server.Close()

	state := stream.NewState()
	totals := make(chan int64, 16)
	state.SubscribeMetrics(func(m model.MetricsSnapshot) { totals <- m.TotalIssues })

	cfg := Config{BaseURL: server.URL, ReconnectDelay: 20 * time.Millisecond}
	m := NewManager(cfg, NewSSETransport(nil, testLogger()), state, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	m.Start()

	for want := int64(1); want <= 2; want++ {
		select {
		case got := <-totals:
			if got != want {
				t.Errorf("totalIssues = %d, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for snapshot %d", want)
		}
	}

	m.Stop()
	if m.Phase() != model.PhaseDisconnected {
		t.Errorf("phase = %q after Stop, want disconnected", m.Phase())
	}
	if stats := m.Stats(); stats.Reconnects < 1 {
		t.Errorf("Reconnects = %d, want >= 1", stats.Reconnects)
	}
}
