package connection

import (
	"bufio"
	"io"
	"strings"
)

// sseFrame is one dispatched server-sent event.
type sseFrame struct {
	name string // "event:" field; "message" when absent
	data string // "data:" lines joined with "\n"
}

// sseReader splits a text/event-stream body into frames.
//
// Frames end at a blank line. Comment lines (":...") keep the connection
// alive and are skipped. id and retry fields are accepted and ignored.
type sseReader struct {
	r   *bufio.Reader
	err error
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next frame. ok is false at end of stream or on error;
// see Err.
func (s *sseReader) next() (f sseFrame, ok bool) {
	var (
		name    string
		data    strings.Builder
		hasData bool
	)

	dispatch := func() sseFrame {
		if name == "" {
			name = "message"
		}
		return sseFrame{name: name, data: data.String()}
	}

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			// A final frame without its terminating blank line is dropped,
			// as an EventSource would.
			s.err = err
			return sseFrame{}, false
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				return dispatch(), true
			}
			name = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}
}

// Err returns the read error that ended the stream, or nil on clean EOF.
func (s *sseReader) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
