// Package sse decodes the upstream chat event stream. The wire format is
// text frames terminated by a blank line: comment lines (":" prefix) carry
// keep-alives, "data:" lines carry a JSON payload, and the literal payload
// "[DONE]" ends the stream regardless of anything that follows it.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

// DoneSentinel is the reserved payload value that marks end-of-stream.
const DoneSentinel = "[DONE]"

// DecodeError wraps a malformed payload. Once returned, the decoder yields
// no further events: a corrupt frame fails the whole decode.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed stream payload %q: %v", e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder turns a raw response body into a sequence of stream events.
// bufio absorbs arbitrary chunk boundaries, so a frame split across reads
// is reassembled transparently.
type Decoder struct {
	r    *bufio.Reader
	done bool
}

// NewDecoder creates a decoder over the streaming response body.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next decoded event. It returns io.EOF when the terminal
// sentinel arrives or the source ends cleanly, a *DecodeError for malformed
// payloads, and the reader's own error otherwise (context cancellation on
// the HTTP body surfaces here).
func (d *Decoder) Next() (*types.StreamEvent, error) {
	if d.done {
		return nil, io.EOF
	}

	for {
		payload, err := d.readFrame()
		if err != nil {
			d.done = true
			return nil, err
		}

		switch payload {
		case "":
			// Frame held only comments or was empty; keep reading.
			continue
		case DoneSentinel:
			d.done = true
			return nil, io.EOF
		}

		// An empty object in any spelling ("{}", "{ }") is a keep-alive,
		// never surfaced. Non-object payloads fail here as malformed.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			d.done = true
			return nil, &DecodeError{Payload: payload, Err: err}
		}
		if len(fields) == 0 {
			continue
		}

		var ev types.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			d.done = true
			return nil, &DecodeError{Payload: payload, Err: err}
		}
		return &ev, nil
	}
}

// readFrame reads lines until the blank frame terminator, returning the
// concatenated data payload. Comment lines are discarded here so they can
// never reach the caller.
func (d *Decoder) readFrame() (string, error) {
	var data strings.Builder

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// A source that ends without the final blank line still
				// delivered its last frame in full; a dangling partial line
				// is an undelivered frame and is dropped.
				if payload := data.String(); payload != "" && line == "" {
					return payload, nil
				}
				return "", io.EOF
			}
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if data.Len() > 0 {
				return data.String(), nil
			}
			// Blank line between frames with nothing buffered: skip.
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimSpace(value))
		}
		// Other field lines (event:, id:) carry nothing we use.
	}
}
