package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"relaygate-gateway/internal/upstream"
)

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()

	tr := NewToolTracker(zaptest.NewLogger(t))

	rec := tr.Start(&upstream.FunctionCall{
		ID:   "call-1",
		Name: "get_equipment_state",
		Args: map[string]any{"equipment_id": "pump-1"},
	})
	assert.Equal(t, ToolStatusCalling, rec.Status)
	assert.Equal(t, 1, tr.OpenCount())

	done, ok := tr.Complete(&upstream.FunctionResponse{
		ID:       "call-1",
		Name:     "get_equipment_state",
		Response: map[string]any{"status": "running"},
	})
	require.True(t, ok)
	assert.Equal(t, ToolStatusComplete, done.Status)
	assert.Equal(t, map[string]any{"equipment_id": "pump-1"}, done.Args, "arguments merged with result")
	assert.Equal(t, map[string]any{"status": "running"}, done.Result)
	assert.Equal(t, 0, tr.OpenCount(), "completed record is evicted")
}

func TestTrackerSameToolDistinctIDs(t *testing.T) {
	t.Parallel()

	tr := NewToolTracker(zaptest.NewLogger(t))

	tr.Start(&upstream.FunctionCall{ID: "a", Name: "get_weather", Args: map[string]any{"query": "sf"}})
	tr.Start(&upstream.FunctionCall{ID: "b", Name: "get_weather", Args: map[string]any{"query": "nyc"}})
	assert.Equal(t, 2, tr.OpenCount(), "identity is the id, not the name")

	recB, ok := tr.Complete(&upstream.FunctionResponse{ID: "b", Name: "get_weather", Response: map[string]any{"r": "90F"}})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"query": "nyc"}, recB.Args)

	recA, ok := tr.Complete(&upstream.FunctionResponse{ID: "a", Name: "get_weather", Response: map[string]any{"r": "60F"}})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"query": "sf"}, recA.Args)
}

func TestTrackerOrphanResponse(t *testing.T) {
	t.Parallel()

	tr := NewToolTracker(zaptest.NewLogger(t))

	rec, ok := tr.Complete(&upstream.FunctionResponse{ID: "ghost", Name: "get_weather"})
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestTrackerDuplicateStartOverwrites(t *testing.T) {
	t.Parallel()

	tr := NewToolTracker(zaptest.NewLogger(t))

	tr.Start(&upstream.FunctionCall{ID: "x", Name: "get_weather", Args: map[string]any{"query": "old"}})
	tr.Start(&upstream.FunctionCall{ID: "x", Name: "get_weather", Args: map[string]any{"query": "new"}})
	assert.Equal(t, 1, tr.OpenCount())

	rec, ok := tr.Complete(&upstream.FunctionResponse{ID: "x", Name: "get_weather"})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"query": "new"}, rec.Args)
}
