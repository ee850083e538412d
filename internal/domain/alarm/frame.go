package alarm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedFrame reports bytes that are neither the heartbeat sentinel
// nor the start of a JSON object. The reader drains what it has buffered so
// the stream can resynchronize on the next write.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one unit read from the broadcast stream.
type Frame struct {
	// Heartbeat marks a liveness probe; Payload is empty.
	Heartbeat bool
	// Payload holds the raw bytes of one JSON event when Heartbeat is false.
	Payload []byte
}

// FrameReader splits the broadcast stream into heartbeats and events.
//
// The wire protocol has no length prefix: the server writes the bare
// sentinel or one JSON object per send. Relying on send/recv alignment is a
// latent bug, so the reader instead scans for complete, brace-balanced JSON
// objects. A message split across reads is reassembled and a heartbeat
// concatenated with an event in one read is separated correctly.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps the provided stream.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r: bufio.NewReader(r),
	}
}

// Next blocks until one complete frame is available.
//
// I/O errors (timeouts, EOF) pass through untranslated so the caller can
// distinguish "no data yet" from a broken connection. ErrMalformedFrame is
// returned for garbage input after the buffered remainder has been drained;
// the stream itself is still presumed healthy.
func (fr *FrameReader) Next() (*Frame, error) {
	if err := fr.skipWhitespace(); err != nil {
		return nil, err
	}

	first, err := fr.r.Peek(1)
	if err != nil {
		return nil, err //nolint:wrapcheck // Raw I/O errors are the caller's signal.
	}

	switch first[0] {
	case Heartbeat[0]:
		probe, err := fr.r.Peek(len(Heartbeat))
		if err != nil {
			return nil, err //nolint:wrapcheck // Raw I/O errors are the caller's signal.
		}

		if !bytes.Equal(probe, Heartbeat) {
			return nil, fr.drainMalformed()
		}

		if _, err := fr.r.Discard(len(Heartbeat)); err != nil {
			return nil, fmt.Errorf("discard heartbeat: %w", err)
		}

		return &Frame{Heartbeat: true}, nil
	case '{':
		payload, err := fr.readObject()
		if err != nil {
			return nil, err
		}

		return &Frame{Payload: payload}, nil
	default:
		return nil, fr.drainMalformed()
	}
}

// skipWhitespace discards insignificant bytes between frames.
func (fr *FrameReader) skipWhitespace() error {
	for {
		b, err := fr.r.Peek(1)
		if err != nil {
			return err //nolint:wrapcheck // Raw I/O errors are the caller's signal.
		}

		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := fr.r.Discard(1); err != nil {
				return fmt.Errorf("discard whitespace: %w", err)
			}
		default:
			return nil
		}
	}
}

// readObject consumes one brace-balanced JSON object, tracking string
// literals so braces inside them do not count.
func (fr *FrameReader) readObject() ([]byte, error) {
	var (
		buf      bytes.Buffer
		depth    int
		inString bool
		escaped  bool
	)

	for {
		c, err := fr.r.ReadByte()
		if err != nil {
			// A timeout here abandons a partial object; the caller logs
			// and continues, matching the tolerance for malformed input.
			return nil, err //nolint:wrapcheck // Raw I/O errors are the caller's signal.
		}

		buf.WriteByte(c)

		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case inString && c == '"':
			inString = false
		case inString:
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return buf.Bytes(), nil
			}
		}
	}
}

// drainMalformed discards everything currently buffered and reports the
// garbage. Draining only the buffered bytes never blocks, and a well-formed
// event arriving afterwards is unaffected.
func (fr *FrameReader) drainMalformed() error {
	buffered := fr.r.Buffered()
	if buffered > 0 {
		if _, err := fr.r.Discard(buffered); err != nil {
			return fmt.Errorf("drain malformed frame: %w", err)
		}
	}

	return fmt.Errorf("%w: %d bytes discarded", ErrMalformedFrame, buffered)
}
