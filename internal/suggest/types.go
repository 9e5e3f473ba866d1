// Package suggest generates follow-up reply suggestions for a completed
// agent turn. Best effort by contract: every failure here is logged and
// swallowed, never surfaced to the chat client.
package suggest

// Confidence levels attached to individual suggestions.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Source points at the tool response field a suggestion was grounded on.
type Source struct {
	Tool  string `json:"tool,omitempty"`
	Field string `json:"field,omitempty"`
}

// Suggestion is one proposed user reply.
type Suggestion struct {
	Text       string  `json:"text"`
	Value      string  `json:"value"`
	Confidence string  `json:"confidence,omitempty"`
	Source     *Source `json:"source,omitempty"`
}

// Content is the enrichment output appended to the tail of a turn.
type Content struct {
	Suggestions  []Suggestion `json:"suggestions"`
	Reasoning    string       `json:"reasoning,omitempty"`
	QuestionType string       `json:"questionType"`
}

// ToolResult is the grounding context passed to the provider: one completed
// tool invocation observed during the turn.
type ToolResult struct {
	Tool     string         `json:"tool"`
	Response map[string]any `json:"response,omitempty"`
}
