package relay

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"relaygate-gateway/internal/metrics"
	"relaygate-gateway/internal/suggest"
	"relaygate-gateway/internal/upstream"
)

// State of one proxied chat session.
type State int

const (
	StateIdle State = iota
	StateAwaitingUpstream
	StateStreaming
	StateEnriching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUpstream:
		return "awaiting_upstream"
	case StateStreaming:
		return "streaming"
	case StateEnriching:
		return "enriching"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session applies the forwarding policy for one proxied request/response
// pair: deltas pass through, redundant final snapshots are suppressed, tool
// lifecycles are tracked and merged, and a best-effort suggestions event is
// appended after the turn completes. A Session is used by one goroutine
// and lives exactly as long as its request.
type Session struct {
	logger   *zap.Logger
	enricher suggest.Provider // nil disables enrichment
	tracker  *ToolTracker

	state        State
	invocationID string
	accumulated  strings.Builder
	history      []*upstream.Event

	// pending carries the in-flight enrichment result for the current
	// turn; buffered so the task can finish after the session is gone.
	pending chan *suggest.Content
}

// NewSession builds a session. A nil enricher turns the suggestion tail
// off entirely.
func NewSession(enricher suggest.Provider, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		logger:       logger.Named("relay"),
		enricher:     enricher,
		tracker:      NewToolTracker(logger),
		state:        StateIdle,
		invocationID: upstream.UnknownInvocation,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Run consumes upstream results and emits downstream events on out until
// the upstream closes, a fatal error arrives, or ctx is cancelled. Run
// closes out before returning. Ordering guarantee: downstream events are
// emitted in upstream observation order, minus suppressed finals; the
// suggestions event, if any, is always last.
func (s *Session) Run(ctx context.Context, results <-chan upstream.StreamResult, out chan<- *Event) {
	defer close(out)
	defer func() { s.state = StateClosed }()

	s.state = StateStreaming

	for res := range results {
		if res.Err != nil {
			// One explanatory error entry, then the stream is done. The
			// enrichment phase is bypassed entirely.
			s.emit(ctx, out, NewErrorEvent(s.invocationID, res.Err.Error()))
			return
		}
		if !s.handleEvent(ctx, out, res.Event) {
			return
		}
	}

	// Upstream closed normally. Give an in-flight enrichment its chance to
	// land before the response closes; the provider call carries its own
	// deadline, so this wait is bounded.
	s.awaitSuggestions(ctx, out)
}

// handleEvent applies the dedup/forwarding policy to one upstream event.
// Returns false when ctx is done and the session should stop.
func (s *Session) handleEvent(ctx context.Context, out chan<- *Event, ev *upstream.Event) bool {
	s.invocationID = ev.Invocation()
	s.history = append(s.history, ev)

	cls := Classify(ev)

	switch cls.Kind {
	case KindTextDelta:
		s.accumulated.WriteString(cls.Text)
		metrics.TextDeltasTotal.Inc()
		return s.emit(ctx, out, NewMessageEvent(s.invocationID, cls.Text))

	case KindTextFinal:
		// The deltas already delivered this text in full; arrival of the
		// non-partial event is the turn-completion signal, nothing more.
		metrics.FinalsSuppressedTotal.Inc()
		if got := s.accumulated.String(); got != cls.Text {
			// The dedup rule rests on observed upstream behavior, not a
			// documented guarantee. Make drift visible.
			s.logger.Warn("final text does not match accumulated deltas",
				zap.String("invocation_id", s.invocationID),
				zap.Int("accumulated_len", len(got)),
				zap.Int("final_len", len(cls.Text)),
			)
		}
		s.startEnrichment(ctx)
		s.accumulated.Reset()
		s.history = nil
		return true

	case KindToolCallStart:
		rec := s.tracker.Start(cls.Call)
		metrics.ToolCallsTotal.WithLabelValues("start").Inc()
		return s.emit(ctx, out, NewToolCallEvent(s.invocationID, rec))

	case KindToolCallComplete:
		rec, ok := s.tracker.Complete(cls.Response)
		if !ok {
			metrics.OrphanToolResponsesTotal.Inc()
			return true
		}
		metrics.ToolCallsTotal.WithLabelValues("complete").Inc()
		return s.emit(ctx, out, NewToolResultEvent(s.invocationID, rec))

	default:
		s.logger.Debug("dropping unclassified upstream event",
			zap.String("invocation_id", s.invocationID),
		)
		return true
	}
}

// startEnrichment fires the suggestion task for the completed turn. Never
// on the hot path: the call runs in its own goroutine and the forwarding
// loop continues immediately. A second completed turn supersedes an
// earlier still-running task; the stale result is simply never read.
func (s *Session) startEnrichment(ctx context.Context) {
	if s.enricher == nil {
		return
	}

	turnText := s.accumulated.String()
	toolCtx := toolContextFrom(s.history)

	pending := make(chan *suggest.Content, 1)
	s.pending = pending
	s.state = StateEnriching

	go func() {
		content, err := s.enricher.Suggest(ctx, turnText, toolCtx)
		if err != nil {
			metrics.EnrichmentTotal.WithLabelValues("error").Inc()
			s.logger.Warn("suggestion enrichment failed", zap.Error(err))
			pending <- nil
			return
		}
		pending <- content
	}()
}

// awaitSuggestions appends the synthetic tail event if the enrichment task
// resolves before the response closes. Cancellation discards the result.
func (s *Session) awaitSuggestions(ctx context.Context, out chan<- *Event) {
	if s.pending == nil {
		return
	}

	select {
	case content := <-s.pending:
		if content == nil {
			return
		}
		if ctx.Err() != nil {
			metrics.EnrichmentTotal.WithLabelValues("discarded").Inc()
			return
		}
		metrics.EnrichmentTotal.WithLabelValues("ok").Inc()
		s.emit(ctx, out, NewSuggestionsEvent(s.invocationID, content))

	case <-ctx.Done():
		metrics.EnrichmentTotal.WithLabelValues("discarded").Inc()
	}
}

// emit sends one downstream event, respecting cancellation. The send
// blocks when the client is slow; flow control belongs to the transport.
func (s *Session) emit(ctx context.Context, out chan<- *Event, ev *Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// toolContextFrom flattens the turn's completed tool invocations into the
// grounding context handed to the enrichment provider.
func toolContextFrom(history []*upstream.Event) []suggest.ToolResult {
	var out []suggest.ToolResult
	for _, ev := range history {
		if resp := ev.FunctionResponse(); resp != nil {
			out = append(out, suggest.ToolResult{
				Tool:     resp.Name,
				Response: resp.Response,
			})
		}
	}
	return out
}
