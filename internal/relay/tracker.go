package relay

import (
	"go.uber.org/zap"

	"relaygate-gateway/internal/upstream"
)

// Tool call lifecycle states.
const (
	ToolStatusCalling  = "calling"
	ToolStatusComplete = "complete"
)

// ToolCallRecord tracks one tool invocation from calling to complete.
// Identity is the call id, not the tool name: concurrent calls to the same
// tool must not collide.
type ToolCallRecord struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"arguments,omitempty"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
}

// ToolTracker is the per-session keyed state machine over open tool calls.
// A session is single-goroutine, so no locking here.
type ToolTracker struct {
	open   map[string]*ToolCallRecord
	logger *zap.Logger
}

func NewToolTracker(logger *zap.Logger) *ToolTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolTracker{
		open:   make(map[string]*ToolCallRecord),
		logger: logger,
	}
}

// Start opens a record for the call. A duplicate id overwrites: the
// upstream re-issuing a call id supersedes the earlier attempt.
func (t *ToolTracker) Start(call *upstream.FunctionCall) *ToolCallRecord {
	rec := &ToolCallRecord{
		ID:     call.ID,
		Name:   call.Name,
		Args:   call.Args,
		Status: ToolStatusCalling,
	}
	t.open[call.ID] = rec
	return rec
}

// Complete attaches the result to the matching open record, evicts it, and
// returns it. A response with no open record is the tolerated orphan case:
// ok is false and the caller drops it without a downstream event.
func (t *ToolTracker) Complete(resp *upstream.FunctionResponse) (*ToolCallRecord, bool) {
	rec, ok := t.open[resp.ID]
	if !ok {
		t.logger.Warn("orphan tool response dropped",
			zap.String("call_id", resp.ID),
			zap.String("tool", resp.Name),
		)
		return nil, false
	}

	rec.Status = ToolStatusComplete
	rec.Result = resp.Response
	delete(t.open, resp.ID)
	return rec, true
}

// OpenCount reports how many calls are still awaiting a result.
func (t *ToolTracker) OpenCount() int {
	return len(t.open)
}
