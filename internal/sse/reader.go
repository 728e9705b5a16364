// Package sse decodes server-sent-event byte streams into discrete frames.
// It is the single parsing path for every provider stream.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix   = "data: "
	eventPrefix  = "event: "
	doneSentinel = "[DONE]"
)

// Frame is one decoded server-sent event. Event carries the `event:` field of
// the record when the provider sends one (Anthropic does, OpenAI does not);
// Data is the JSON payload of the `data:` line.
type Frame struct {
	Event string
	Data  json.RawMessage
}

// Reader decodes frames from a byte stream. It is not safe for concurrent
// use. Close releases the underlying stream and must be called on every exit
// path, including early termination.
type Reader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	event   string
	done    bool
}

// NewReader wraps body in a frame reader. The scanner buffer is enlarged
// because single deltas can carry large payloads (base64 signatures,
// accumulated tool arguments).
func NewReader(body io.ReadCloser) *Reader {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &Reader{body: body, scanner: scanner}
}

// Next returns the next frame. It returns io.EOF when the stream is
// exhausted or the [DONE] sentinel is consumed; the sentinel itself is never
// emitted. Individual lines whose payload is not valid JSON are dropped
// silently so one corrupt frame from a flaky transport does not abort the
// stream.
func (r *Reader) Next() (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, eventPrefix) {
			r.event = strings.TrimPrefix(line, eventPrefix)
			continue
		}

		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, dataPrefix)
		if data == doneSentinel {
			r.done = true
			return Frame{}, io.EOF
		}

		if !json.Valid([]byte(data)) {
			continue
		}

		return Frame{Event: r.event, Data: json.RawMessage(data)}, nil
	}

	r.done = true
	if err := r.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("stream read error: %w", err)
	}
	return Frame{}, io.EOF
}

// Close releases the underlying stream. Safe to call more than once.
func (r *Reader) Close() error {
	r.done = true
	return r.body.Close()
}
