package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/issue-dashboard/internal/version"
)

// SSETransport opens server-sent event streams over HTTP.
type SSETransport struct {
	client *http.Client
	logger *slog.Logger
}

// NewSSETransport creates an SSE transport. The HTTP client must not set a
// Timeout, since streams stay open indefinitely; nil uses a fresh client.
func NewSSETransport(client *http.Client, logger *slog.Logger) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSETransport{client: client, logger: logger}
}

// Open starts connecting to url in the background.
func (t *SSETransport) Open(url string, l Listener) Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &sseHandle{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(ctx, h, url, l)
	return h
}

func (t *SSETransport) run(ctx context.Context, h *sseHandle, url string, l Listener) {
	defer close(h.done)
	logger := t.logger.With("channel_id", h.id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		h.fail(l, fmt.Errorf("create request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := t.client.Do(req)
	if err != nil {
		h.fail(l, fmt.Errorf("do request: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		h.fail(l, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
		return
	}

	logger.Debug("sse stream open", "url", url)
	if !h.emit(l.OnOpen) {
		return
	}

	r := newSSEReader(resp.Body)
	for {
		f, ok := r.next()
		if !ok {
			break
		}
		payload := []byte(f.data)
		if !h.emit(func() { l.OnFrame(f.name, payload) }) {
			return
		}
	}

	err = r.Err()
	if err == nil {
		err = ErrStreamClosed
	}
	h.fail(l, err)
}

// sseHandle is one HTTP stream.
type sseHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	closed atomic.Bool
}

func (h *sseHandle) ID() string { return h.id }

// Close cancels the request. It does not wait for the reader goroutine.
func (h *sseHandle) Close() error {
	h.closed.Store(true)
	h.cancel()
	return nil
}

// emit runs fn unless the handle has been closed.
func (h *sseHandle) emit(fn func()) bool {
	if h.closed.Load() {
		return false
	}
	fn()
	return true
}

func (h *sseHandle) fail(l Listener, err error) {
	h.emit(func() { l.OnError(err) })
}
