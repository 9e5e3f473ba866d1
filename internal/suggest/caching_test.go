package suggest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaygate-gateway/internal/cache"
)

type countingEnricher struct {
	calls   atomic.Int64
	content *Content
	err     error
}

func (e *countingEnricher) Suggest(_ context.Context, _ string, _ []ToolResult) (*Content, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.content, nil
}

func TestCachingProviderHit(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { store.Close() })

	inner := &countingEnricher{content: &Content{
		Suggestions:  []Suggestion{{Text: "Yes", Value: "yes"}},
		QuestionType: QuestionYesNo,
	}}
	p := NewCachingProvider(inner, store, time.Minute, "app", "v1")

	toolCtx := []ToolResult{{Tool: "get_weather", Response: map[string]any{"r": "sunny"}}}

	first, err := p.Suggest(context.Background(), "Proceed, yes or no?", toolCtx)
	require.NoError(t, err)
	require.Equal(t, int64(1), inner.calls.Load())

	second, err := p.Suggest(context.Background(), "Proceed, yes or no?", toolCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.calls.Load(), "identical turn must be served from cache")
	assert.Equal(t, first.QuestionType, second.QuestionType)
	require.Len(t, second.Suggestions, 1)
	assert.Equal(t, "Yes", second.Suggestions[0].Text)
}

func TestCachingProviderKeyedByInput(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { store.Close() })

	inner := &countingEnricher{content: &Content{QuestionType: QuestionOpenEnded}}
	p := NewCachingProvider(inner, store, time.Minute, "app", "v1")

	_, err := p.Suggest(context.Background(), "turn one", nil)
	require.NoError(t, err)
	_, err = p.Suggest(context.Background(), "turn two", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())

	// Same text, different tool context: still a distinct key.
	_, err = p.Suggest(context.Background(), "turn one", []ToolResult{{Tool: "get_weather"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), inner.calls.Load())
}

func TestCachingProviderDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { store.Close() })

	inner := &countingEnricher{err: errors.New("overloaded")}
	p := NewCachingProvider(inner, store, time.Minute, "app", "v1")

	_, err := p.Suggest(context.Background(), "hello?", nil)
	require.Error(t, err)
	_, err = p.Suggest(context.Background(), "hello?", nil)
	require.Error(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
	assert.Equal(t, 0, store.Len())
}
