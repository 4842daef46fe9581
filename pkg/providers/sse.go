package providers

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	// Event is the event name (empty when the stream uses bare data lines).
	Event string

	// Data is the concatenated data payload of the event.
	Data string
}

// SSEReader incrementally parses a text/event-stream body.
//
// The reader never buffers more than one event: it consumes lines until the
// blank-line delimiter and returns the accumulated event. Payloads that
// split JSON objects across TCP reads are handled naturally because the
// underlying bufio.Scanner only surfaces complete lines.
type SSEReader struct {
	scanner *bufio.Scanner
}

// maxSSELineBytes bounds a single SSE line. Provider deltas are small;
// 1 MiB leaves generous headroom for tool-call argument payloads.
const maxSSELineBytes = 1 << 20

// NewSSEReader wraps r in an event reader.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxSSELineBytes)
	return &SSEReader{scanner: scanner}
}

// Next returns the next event. It returns io.EOF when the stream ends
// cleanly and the scanner's error otherwise.
func (r *SSEReader) Next() (*SSEEvent, error) {
	var event SSEEvent
	var data []string

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Blank line delimits events.
		if line == "" {
			if len(data) > 0 || event.Event != "" {
				event.Data = strings.Join(data, "\n")
				return &event, nil
			}
			continue
		}

		// Comment lines (": keep-alive") are discarded.
		if strings.HasPrefix(line, ":") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			// Unknown field; ignore per the SSE spec.
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// A final event without a trailing blank line still counts.
	if len(data) > 0 || event.Event != "" {
		event.Data = strings.Join(data, "\n")
		return &event, nil
	}

	return nil, io.EOF
}

// NDJSONReader incrementally parses a newline-delimited JSON body (the
// Ollama streaming shape).
type NDJSONReader struct {
	scanner *bufio.Scanner
}

// NewNDJSONReader wraps r in a line reader.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxSSELineBytes)
	return &NDJSONReader{scanner: scanner}
}

// Next returns the next non-empty line. io.EOF on clean end of stream.
func (r *NDJSONReader) Next() ([]byte, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Copy: the scanner reuses its buffer on the next Scan.
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
