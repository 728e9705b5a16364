package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func newTestReader(stream string) (*Reader, *closeTracker) {
	ct := &closeTracker{Reader: strings.NewReader(stream)}
	return NewReader(ct), ct
}

func collect(t *testing.T, r *Reader) []Frame {
	t.Helper()
	var frames []Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		frames = append(frames, f)
	}
}

func TestReader_DataFrames(t *testing.T) {
	r, _ := newTestReader("data: {\"a\":1}\n\ndata: {\"b\":2}\n\n")

	frames := collect(t, r)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if string(frames[0].Data) != `{"a":1}` {
		t.Errorf("frame 0 = %s", frames[0].Data)
	}
}

func TestReader_EventTypes(t *testing.T) {
	stream := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\"}\n\n"
	r, _ := newTestReader(stream)

	frames := collect(t, r)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Event != "message_start" {
		t.Errorf("frame 0 event = %q", frames[0].Event)
	}
	if frames[1].Event != "content_block_delta" {
		t.Errorf("frame 1 event = %q", frames[1].Event)
	}
}

func TestReader_DoneSentinelConsumed(t *testing.T) {
	r, _ := newTestReader("data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {\"b\":2}\n\n")

	frames := collect(t, r)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1: sentinel ends the stream and is not emitted", len(frames))
	}

	// Reader stays terminated after the sentinel.
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after DONE = %v, want EOF", err)
	}
}

func TestReader_MalformedLineDropped(t *testing.T) {
	r, _ := newTestReader("data: {\"a\":1}\n\ndata: {not json\n\ndata: {\"b\":2}\n\n")

	frames := collect(t, r)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: bad line dropped, stream continues", len(frames))
	}
	if string(frames[1].Data) != `{"b":2}` {
		t.Errorf("frame 1 = %s", frames[1].Data)
	}
}

func TestReader_IgnoresNonDataLines(t *testing.T) {
	r, _ := newTestReader(": keepalive\nretry: 100\ndata: {\"a\":1}\n\n")

	frames := collect(t, r)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestReader_Close(t *testing.T) {
	r, ct := newTestReader("data: {\"a\":1}\n\n")

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ct.closed {
		t.Error("underlying reader not closed")
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after Close = %v, want EOF", err)
	}
}
