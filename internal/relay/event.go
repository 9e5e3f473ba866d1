package relay

import (
	"time"

	"github.com/google/uuid"

	"relaygate-gateway/internal/suggest"
)

// Downstream event types.
const (
	TypeMessage     = "message"
	TypeToolCall    = "tool_call"
	TypeToolResult  = "tool_result"
	TypeSuggestions = "suggestions"
	TypeError       = "error"
)

// RoleModel is the speaking role on every relayed event; the gateway only
// re-emits agent output.
const RoleModel = "model"

// Part is one piece of downstream message content.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Content is the payload of a downstream event. For the synthetic tail
// event the embedded suggestion fields are set instead of Parts.
type Content struct {
	Parts []Part `json:"parts,omitempty"`
	*suggest.Content
}

// Event is the normalized shape written to the client stream, one JSON
// object per SSE data line.
type Event struct {
	ID           string            `json:"id"`
	InvocationID string            `json:"invocationId"`
	Role         string            `json:"role"`
	Type         string            `json:"type"`
	Content      *Content          `json:"content,omitempty"`
	ToolCalls    []*ToolCallRecord `json:"toolCalls,omitempty"`
	Error        string            `json:"error,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

func newEvent(invocationID, eventType string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		InvocationID: invocationID,
		Role:         RoleModel,
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
	}
}

// NewMessageEvent wraps one text delta.
func NewMessageEvent(invocationID, text string) *Event {
	ev := newEvent(invocationID, TypeMessage)
	ev.Content = &Content{Parts: []Part{{Text: text}}}
	return ev
}

// NewToolCallEvent announces a tool invocation entering the calling state.
func NewToolCallEvent(invocationID string, rec *ToolCallRecord) *Event {
	ev := newEvent(invocationID, TypeToolCall)
	ev.ToolCalls = []*ToolCallRecord{rec}
	return ev
}

// NewToolResultEvent carries the completed record, arguments merged with
// the result.
func NewToolResultEvent(invocationID string, rec *ToolCallRecord) *Event {
	ev := newEvent(invocationID, TypeToolResult)
	ev.ToolCalls = []*ToolCallRecord{rec}
	return ev
}

// NewSuggestionsEvent is the synthetic tail event of a turn.
func NewSuggestionsEvent(invocationID string, content *suggest.Content) *Event {
	ev := newEvent(invocationID, TypeSuggestions)
	ev.Content = &Content{Content: content}
	return ev
}

// NewErrorEvent is the single explanatory entry a failed stream ends with.
func NewErrorEvent(invocationID, message string) *Event {
	ev := newEvent(invocationID, TypeError)
	ev.Error = message
	return ev
}
