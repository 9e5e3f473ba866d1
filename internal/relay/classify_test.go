package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"relaygate-gateway/internal/upstream"
)

func textEvent(partial bool, parts ...string) *upstream.Event {
	ev := &upstream.Event{Partial: partial, Content: &upstream.Content{}}
	for _, p := range parts {
		ev.Content.Parts = append(ev.Content.Parts, upstream.Part{Text: p})
	}
	return ev
}

func TestClassifyTextDelta(t *testing.T) {
	t.Parallel()

	cls := Classify(textEvent(true, "Hel", "lo"))
	assert.Equal(t, KindTextDelta, cls.Kind)
	assert.Equal(t, "Hello", cls.Text, "delta carries the concatenation of all text parts")
}

func TestClassifyTextFinal(t *testing.T) {
	t.Parallel()

	cls := Classify(textEvent(false, "Hello!"))
	assert.Equal(t, KindTextFinal, cls.Kind)
	assert.Equal(t, "Hello!", cls.Text)
}

func TestClassifyToolCallBeatsText(t *testing.T) {
	t.Parallel()

	ev := &upstream.Event{
		Partial: true,
		Content: &upstream.Content{Parts: []upstream.Part{
			{Text: "checking..."},
			{FunctionCall: &upstream.FunctionCall{ID: "c1", Name: "get_weather"}},
		}},
	}

	cls := Classify(ev)
	assert.Equal(t, KindToolCallStart, cls.Kind)
	assert.Equal(t, "c1", cls.Call.ID)
}

func TestClassifyToolResponse(t *testing.T) {
	t.Parallel()

	ev := &upstream.Event{
		Content: &upstream.Content{Parts: []upstream.Part{
			{FunctionResponse: &upstream.FunctionResponse{ID: "c1", Name: "get_weather", Response: map[string]any{"result": "sunny"}}},
		}},
	}

	cls := Classify(ev)
	assert.Equal(t, KindToolCallComplete, cls.Kind)
	assert.Equal(t, "c1", cls.Response.ID)
}

func TestClassifyOther(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindOther, Classify(&upstream.Event{}).Kind)
	assert.Equal(t, KindOther, Classify(&upstream.Event{Content: &upstream.Content{}}).Kind)
}
