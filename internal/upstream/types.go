package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// UnknownInvocation is the sentinel turn id for events that arrive without
// an invocationId.
const UnknownInvocation = "unknown"

// FunctionCall is a tool invocation requested by the agent.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse is the result of a tool invocation.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Part is a single piece of an agent turn: text, a tool call, or a tool
// result. In observed traffic at most one of the three is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// Content groups the parts of one event with the speaking role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Event is one decoded unit of the upstream stream. Unknown fields are
// ignored; there is no envelope guarantee beyond this shape.
type Event struct {
	InvocationID string          `json:"invocationId,omitempty"`
	Partial      bool            `json:"partial,omitempty"`
	Content      *Content        `json:"content,omitempty"`
	Error        json.RawMessage `json:"error,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// Invocation returns the event's turn id, or the sentinel if absent.
func (e *Event) Invocation() string {
	if e.InvocationID == "" {
		return UnknownInvocation
	}
	return e.InvocationID
}

// TextParts returns the event's text parts in order.
func (e *Event) TextParts() []string {
	if e.Content == nil {
		return nil
	}
	var out []string
	for _, p := range e.Content.Parts {
		if p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return out
}

// Text concatenates all text parts.
func (e *Event) Text() string {
	return strings.Join(e.TextParts(), "")
}

// FunctionCall returns the event's tool call, if any.
func (e *Event) FunctionCall() *FunctionCall {
	if e.Content == nil {
		return nil
	}
	for _, p := range e.Content.Parts {
		if p.FunctionCall != nil {
			return p.FunctionCall
		}
	}
	return nil
}

// FunctionResponse returns the event's tool result, if any.
func (e *Event) FunctionResponse() *FunctionResponse {
	if e.Content == nil {
		return nil
	}
	for _, p := range e.Content.Parts {
		if p.FunctionResponse != nil {
			return p.FunctionResponse
		}
	}
	return nil
}

// errorText returns the embedded upstream error, if the event carries one.
// The error field is kept raw because upstreams have been seen sending both
// strings and objects there.
func (e *Event) errorText() (string, bool) {
	if e.ErrorMessage != "" {
		return e.ErrorMessage, true
	}
	if len(e.Error) == 0 || bytes.Equal(e.Error, []byte("null")) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s, s != ""
	}
	return string(e.Error), true
}

// RunRequest is the body sent to the upstream run endpoint.
type RunRequest struct {
	AppName    string  `json:"appName"`
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	NewMessage Content `json:"newMessage"`
	Streaming  bool    `json:"streaming"`
}

// Validate checks the fields the upstream rejects requests without.
func (r *RunRequest) Validate() error {
	if r.AppName == "" {
		return errors.New("appName is required")
	}
	if r.UserID == "" {
		return errors.New("userId is required")
	}
	if r.SessionID == "" {
		return errors.New("sessionId is required")
	}
	if len(r.NewMessage.Parts) == 0 {
		return errors.New("newMessage must have at least one part")
	}
	return nil
}

// StreamResult is one item of the upstream read loop's output channel:
// either a decoded event or a terminal error.
type StreamResult struct {
	Event *Event
	Err   error
}
