package connection

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func readAllFrames(t *testing.T, body string) ([]sseFrame, error) {
	t.Helper()
	r := newSSEReader(strings.NewReader(body))
	var frames []sseFrame
	for {
		f, ok := r.next()
		if !ok {
			return frames, r.Err()
		}
		frames = append(frames, f)
	}
}

func TestSSEReader(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []sseFrame
	}{
		{
			name: "named event",
			body: "event: metrics\ndata: {\"totalIssues\":1}\n\n",
			want: []sseFrame{{name: "metrics", data: `{"totalIssues":1}`}},
		},
		{
			name: "default name",
			body: "data: hello\n\n",
			want: []sseFrame{{name: "message", data: "hello"}},
		},
		{
			name: "multi-line data",
			body: "event: issue-event\ndata: {\ndata: \"a\":1\ndata: }\n\n",
			want: []sseFrame{{name: "issue-event", data: "{\n\"a\":1\n}"}},
		},
		{
			name: "crlf and no space after colon",
			body: "event:metrics\r\ndata:{}\r\n\r\n",
			want: []sseFrame{{name: "metrics", data: "{}"}},
		},
		{
			name: "comments and id skipped",
			body: ": keepalive\n\nid: 7\nretry: 1000\nevent: metrics\ndata: {}\n\n",
			want: []sseFrame{{name: "metrics", data: "{}"}},
		},
		{
			name: "event without data is not dispatched",
			body: "event: metrics\n\nevent: issue-event\ndata: x\n\n",
			want: []sseFrame{{name: "issue-event", data: "x"}},
		},
		{
			name: "sequence",
			body: "event: metrics\ndata: 1\n\nevent: issue-event\ndata: 2\n\ndata: 3\n\n",
			want: []sseFrame{
				{name: "metrics", data: "1"},
				{name: "issue-event", data: "2"},
				{name: "message", data: "3"},
			},
		},
		{
			name: "unterminated final frame dropped",
			body: "event: metrics\ndata: 1\n\nevent: metrics\ndata: 2\n",
			want: []sseFrame{{name: "metrics", data: "1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readAllFrames(t, tt.body)
			if err != nil {
				t.Fatalf("Err() = %v, want nil", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("frames = %+v, want %+v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("frame %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestSSEReader_ReadError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	r := newSSEReader(&failingReader{data: "event: metrics\ndata: 1\n\n", err: boom})

	f, ok := r.next()
	if !ok || f.data != "1" {
		t.Fatalf("next() = %+v, %v", f, ok)
	}
	if _, ok := r.next(); ok {
		t.Fatal("next() after error returned a frame")
	}
	if !errors.Is(r.Err(), boom) {
		t.Errorf("Err() = %v, want %v", r.Err(), boom)
	}
}

func TestSSEReader_EOFIsClean(t *testing.T) {
	r := newSSEReader(strings.NewReader(""))
	if _, ok := r.next(); ok {
		t.Fatal("next() on empty body returned a frame")
	}
	if err := r.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if r.err != io.EOF {
		t.Errorf("err = %v, want io.EOF", r.err)
	}
}
