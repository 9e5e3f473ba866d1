package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"relaygate-gateway/internal/suggest"
	"relaygate-gateway/internal/upstream"
)

type fakeEnricher struct {
	mu       sync.Mutex
	calls    int
	gotText  string
	gotTools []suggest.ToolResult

	content *suggest.Content
	err     error
	release chan struct{} // if non-nil, Suggest blocks until closed (or ctx done)
}

func (f *fakeEnricher) Suggest(ctx context.Context, text string, tools []suggest.ToolResult) (*suggest.Content, error) {
	f.mu.Lock()
	f.calls++
	f.gotText = text
	f.gotTools = tools
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return f.content, f.err
}

func (f *fakeEnricher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func delta(inv, text string) upstream.StreamResult {
	return upstream.StreamResult{Event: &upstream.Event{
		InvocationID: inv,
		Partial:      true,
		Content:      &upstream.Content{Parts: []upstream.Part{{Text: text}}},
	}}
}

func final(inv, text string) upstream.StreamResult {
	return upstream.StreamResult{Event: &upstream.Event{
		InvocationID: inv,
		Content:      &upstream.Content{Parts: []upstream.Part{{Text: text}}},
	}}
}

func toolCall(inv, id, name string, args map[string]any) upstream.StreamResult {
	return upstream.StreamResult{Event: &upstream.Event{
		InvocationID: inv,
		Partial:      true,
		Content: &upstream.Content{Parts: []upstream.Part{
			{FunctionCall: &upstream.FunctionCall{ID: id, Name: name, Args: args}},
		}},
	}}
}

func toolResp(inv, id, name string, resp map[string]any) upstream.StreamResult {
	return upstream.StreamResult{Event: &upstream.Event{
		InvocationID: inv,
		Partial:      true,
		Content: &upstream.Content{Parts: []upstream.Part{
			{FunctionResponse: &upstream.FunctionResponse{ID: id, Name: name, Response: resp}},
		}},
	}}
}

// runSession feeds the given results through a session and collects every
// downstream event.
func runSession(t *testing.T, sess *Session, inputs []upstream.StreamResult) []*Event {
	t.Helper()

	results := make(chan upstream.StreamResult, len(inputs))
	for _, in := range inputs {
		results <- in
	}
	close(results)

	out := make(chan *Event, 64)
	done := make(chan struct{})
	go func() {
		sess.Run(context.Background(), results, out)
		close(done)
	}()

	var events []*Event
	for ev := range out {
		events = append(events, ev)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish")
	}

	return events
}

// Spec scenario: N deltas followed by one final snapshot must produce
// exactly N text events whose concatenation equals the final text, and
// zero events duplicating the snapshot.
func TestSessionDedup(t *testing.T) {
	t.Parallel()

	sess := NewSession(nil, zaptest.NewLogger(t))
	events := runSession(t, sess, []upstream.StreamResult{
		delta("inv-1", "Hel"),
		delta("inv-1", "lo!"),
		final("inv-1", "Hello!"),
	})

	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, TypeMessage, ev.Type)
		assert.Equal(t, "inv-1", ev.InvocationID)
		assert.Equal(t, RoleModel, ev.Role)
		assert.NotEmpty(t, ev.ID)
	}
	assert.Equal(t, "Hel", events[0].Content.Parts[0].Text)
	assert.Equal(t, "lo!", events[1].Content.Parts[0].Text)

	assert.Equal(t, StateClosed, sess.State())
}

func TestSessionSuggestionsAlwaysLast(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{
		content: &suggest.Content{
			Suggestions:  []suggest.Suggestion{{Text: "Yes", Value: "yes", Confidence: suggest.ConfidenceHigh}},
			QuestionType: suggest.QuestionYesNo,
		},
	}

	sess := NewSession(enricher, zaptest.NewLogger(t))
	events := runSession(t, sess, []upstream.StreamResult{
		delta("inv-1", "Shall we proceed, yes or no?"),
		final("inv-1", "Shall we proceed, yes or no?"),
	})

	require.Len(t, events, 2)
	assert.Equal(t, TypeMessage, events[0].Type)

	tail := events[1]
	assert.Equal(t, TypeSuggestions, tail.Type)
	require.NotNil(t, tail.Content)
	require.NotNil(t, tail.Content.Content)
	assert.Equal(t, suggest.QuestionYesNo, tail.Content.QuestionType)
	require.Len(t, tail.Content.Suggestions, 1)
	assert.Equal(t, "Yes", tail.Content.Suggestions[0].Text)
}

func TestSessionToolCallPairing(t *testing.T) {
	t.Parallel()

	sess := NewSession(nil, zaptest.NewLogger(t))
	events := runSession(t, sess, []upstream.StreamResult{
		toolCall("inv-1", "c1", "get_weather", map[string]any{"query": "sf"}),
		toolCall("inv-1", "c2", "get_current_time", map[string]any{"query": "sf"}),
		toolResp("inv-1", "c2", "get_current_time", map[string]any{"time": "09:00"}),
		toolResp("inv-1", "c1", "get_weather", map[string]any{"result": "foggy"}),
		delta("inv-1", "It's foggy."),
		final("inv-1", "It's foggy."),
	})

	require.Len(t, events, 5)

	assert.Equal(t, TypeToolCall, events[0].Type)
	assert.Equal(t, "c1", events[0].ToolCalls[0].ID)
	assert.Equal(t, ToolStatusCalling, events[0].ToolCalls[0].Status)

	assert.Equal(t, TypeToolCall, events[1].Type)
	assert.Equal(t, "c2", events[1].ToolCalls[0].ID)

	assert.Equal(t, TypeToolResult, events[2].Type)
	assert.Equal(t, "c2", events[2].ToolCalls[0].ID)
	assert.Equal(t, ToolStatusComplete, events[2].ToolCalls[0].Status)
	assert.Equal(t, map[string]any{"time": "09:00"}, events[2].ToolCalls[0].Result)

	assert.Equal(t, TypeToolResult, events[3].Type)
	assert.Equal(t, "c1", events[3].ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"query": "sf"}, events[3].ToolCalls[0].Args)

	assert.Equal(t, TypeMessage, events[4].Type)
}

func TestSessionOrphanToolResponseDropped(t *testing.T) {
	t.Parallel()

	sess := NewSession(nil, zaptest.NewLogger(t))
	events := runSession(t, sess, []upstream.StreamResult{
		toolResp("inv-1", "ghost", "get_weather", map[string]any{"r": "?"}),
		delta("inv-1", "hi"),
	})

	require.Len(t, events, 1, "orphan must produce zero downstream events")
	assert.Equal(t, TypeMessage, events[0].Type)
}

func TestSessionFatalErrorEndsStream(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{content: &suggest.Content{QuestionType: suggest.QuestionOpenEnded}}
	sess := NewSession(enricher, zaptest.NewLogger(t))

	events := runSession(t, sess, []upstream.StreamResult{
		delta("inv-1", "partial answ"),
		{Err: &upstream.ProtocolError{Message: "429 Too Many Requests"}},
	})

	require.Len(t, events, 2)
	assert.Equal(t, TypeMessage, events[0].Type)

	errEv := events[1]
	assert.Equal(t, TypeError, errEv.Type)
	assert.Contains(t, errEv.Error, "429 Too Many Requests")

	assert.Equal(t, 0, enricher.callCount(), "fatal path bypasses enrichment")
	assert.Equal(t, StateClosed, sess.State())
}

// The forwarding path's latency must be independent of the enrichment
// provider's: every text event must be deliverable while the provider is
// still hanging.
func TestSessionEnrichmentNeverBlocksForwarding(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	enricher := &fakeEnricher{
		release: release,
		content: &suggest.Content{QuestionType: suggest.QuestionOpenEnded},
	}

	results := make(chan upstream.StreamResult, 4)
	results <- delta("inv-1", "Hel")
	results <- delta("inv-1", "lo!")
	results <- final("inv-1", "Hello!")
	close(results)

	out := make(chan *Event, 1) // unbuffered-ish: forces the session to push through
	sess := NewSession(enricher, zaptest.NewLogger(t))
	go sess.Run(context.Background(), results, out)

	// Both deltas must arrive while the enricher is still blocked.
	for _, want := range []string{"Hel", "lo!"} {
		select {
		case ev := <-out:
			require.Equal(t, TypeMessage, ev.Type)
			require.Equal(t, want, ev.Content.Parts[0].Text)
		case <-time.After(2 * time.Second):
			t.Fatalf("delta %q not delivered while enrichment pending", want)
		}
	}

	// Nothing else is due until the enricher resolves.
	select {
	case ev := <-out:
		t.Fatalf("unexpected event before enrichment resolved: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case ev := <-out:
		require.NotNil(t, ev)
		assert.Equal(t, TypeSuggestions, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatalf("suggestions event not delivered after enrichment resolved")
	}

	if _, open := <-out; open {
		t.Fatalf("out channel should be closed after the suggestions tail")
	}
}

func TestSessionEnrichmentFailureOmitsTail(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{err: context.DeadlineExceeded}
	sess := NewSession(enricher, zaptest.NewLogger(t))

	events := runSession(t, sess, []upstream.StreamResult{
		delta("inv-1", "Hello!"),
		final("inv-1", "Hello!"),
	})

	require.Len(t, events, 1, "enrichment failure is invisible to the client")
	assert.Equal(t, TypeMessage, events[0].Type)
	assert.Equal(t, 1, enricher.callCount())
}

func TestSessionCancellationDiscardsEnrichment(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	enricher := &fakeEnricher{
		release: release,
		content: &suggest.Content{QuestionType: suggest.QuestionOpenEnded},
	}

	ctx, cancel := context.WithCancel(context.Background())

	results := make(chan upstream.StreamResult, 2)
	results <- final("inv-1", "done")
	close(results)

	out := make(chan *Event, 8)
	sess := NewSession(enricher, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		sess.Run(ctx, results, out)
		close(done)
	}()

	// Let the final land and the enrichment start, then cancel the client.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not stop after cancellation")
	}

	for ev := range out {
		assert.NotEqual(t, TypeSuggestions, ev.Type, "cancelled session must not emit suggestions")
	}
}

func TestSessionEnrichmentInput(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{content: &suggest.Content{QuestionType: suggest.QuestionState}}
	sess := NewSession(enricher, zaptest.NewLogger(t))

	runSession(t, sess, []upstream.StreamResult{
		toolCall("inv-1", "c1", "get_equipment_state", map[string]any{"equipment_id": "pump-1"}),
		toolResp("inv-1", "c1", "get_equipment_state", map[string]any{"status": "warning"}),
		delta("inv-1", "Pump-1 is in warning. "),
		delta("inv-1", "What is its current status?"),
		final("inv-1", "Pump-1 is in warning. What is its current status?"),
	})

	require.Equal(t, 1, enricher.callCount())
	assert.Equal(t, "Pump-1 is in warning. What is its current status?", enricher.gotText)
	require.Len(t, enricher.gotTools, 1)
	assert.Equal(t, "get_equipment_state", enricher.gotTools[0].Tool)
	assert.Equal(t, map[string]any{"status": "warning"}, enricher.gotTools[0].Response)
}
