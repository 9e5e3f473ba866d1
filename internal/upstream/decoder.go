package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrIncompleteFrame marks a frame that failed to parse but does not look
// like an upstream error. This can legitimately happen when a JSON payload
// is split at a transport boundary larger than the line framing assumes.
// Callers log and skip; the session keeps going.
var ErrIncompleteFrame = errors.New("upstream: unparseable frame")

// ProtocolError is a recognizable upstream failure embedded in the stream.
// Terminal: the session emits one downstream error event and closes.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "upstream: " + e.Message
}

// ConnectError marks a failure to open the upstream connection at all.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("upstream: connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// statusPhrase matches HTTP status lines like "429 Too Many Requests"
// leaking into a frame body.
var statusPhrase = regexp.MustCompile(`\b([45]\d\d) ([A-Z][A-Za-z'-]*(?: [A-Za-z'-]+)*)`)

// DecodeFrame parses one frame into an Event. Three outcomes:
//   - a well-formed event: (*Event, nil)
//   - a recognizable upstream failure, whether parseable or not:
//     (nil, *ProtocolError)
//   - anything else unparseable: (nil, ErrIncompleteFrame)
func DecodeFrame(frame []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err == nil {
		if msg, ok := ev.errorText(); ok {
			return nil, &ProtocolError{Message: msg}
		}
		return &ev, nil
	}

	if msg, ok := errorMarker(string(frame)); ok {
		return nil, &ProtocolError{Message: msg}
	}

	return nil, ErrIncompleteFrame
}

// errorMarker scans a raw unparseable payload for signs of an upstream
// error: an HTTP status phrase, or an "error" field with a non-null value.
func errorMarker(raw string) (string, bool) {
	if m := statusPhrase.FindString(raw); m != "" {
		return m, true
	}

	idx := strings.Index(raw, `"error"`)
	if idx == -1 {
		return "", false
	}
	rest := strings.TrimLeft(raw[idx+len(`"error"`):], " \t:")
	if rest == "" || strings.HasPrefix(rest, "null") {
		return "", false
	}

	if rest[0] == '"' {
		if end := strings.IndexByte(rest[1:], '"'); end > 0 {
			return rest[1 : end+1], true
		}
		return "", false
	}

	// Non-string error value in a broken frame; surface what we have.
	msg := rest
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg, true
}
