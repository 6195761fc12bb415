package serve

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 10 * 1024 * 1024

// EventStream incrementally parses a Server-Sent-Events body. Only
// data lines matter to the agent protocol; comments, event names and
// ids are ignored.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	data    []string
}

func newEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	return &EventStream{body: body, scanner: scanner}
}

// Next blocks until a complete event is available. Malformed payloads
// are logged and skipped rather than failing the stream. Returns
// io.EOF when the server closes the feed.
func (s *EventStream) Next() (*EventRecord, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()

		if after, ok := strings.CutPrefix(line, "data:"); ok {
			s.data = append(s.data, strings.TrimSpace(after))
			continue
		}
		if line != "" {
			// Field we don't care about (event:, id:, retry:, comments).
			continue
		}
		if len(s.data) == 0 {
			continue
		}

		payload := strings.Join(s.data, "\n")
		s.data = s.data[:0]

		var record EventRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			slog.Debug("skipping malformed SSE payload", "error", err)
			continue
		}
		return &record, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying response body.
func (s *EventStream) Close() error {
	return s.body.Close()
}
