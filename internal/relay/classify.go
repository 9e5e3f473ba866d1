package relay

import "relaygate-gateway/internal/upstream"

// Kind labels what one upstream event means for the forwarding policy.
type Kind int

const (
	// KindOther is anything the rules below don't claim. Forwarded shape
	// depends on policy; never a crash.
	KindOther Kind = iota
	KindTextDelta
	KindTextFinal
	KindToolCallStart
	KindToolCallComplete
)

func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text_delta"
	case KindTextFinal:
		return "text_final"
	case KindToolCallStart:
		return "tool_call_start"
	case KindToolCallComplete:
		return "tool_call_complete"
	default:
		return "other"
	}
}

// Classification is the result of inspecting one upstream event.
type Classification struct {
	Kind Kind

	// Text is set for KindTextDelta (the new text, not cumulative) and for
	// KindTextFinal (the full accumulated turn text, used only for the
	// drift check and enrichment, never re-forwarded).
	Text string

	Call     *upstream.FunctionCall     // KindToolCallStart
	Response *upstream.FunctionResponse // KindToolCallComplete
}

// Classify labels an upstream event. Rules in priority order: a tool call
// beats a tool result beats text; text splits on the partial flag. The
// upstream's only turn-completion signal is the non-partial event, which
// pays for that signal by re-sending the full text.
func Classify(ev *upstream.Event) Classification {
	if call := ev.FunctionCall(); call != nil {
		return Classification{Kind: KindToolCallStart, Call: call}
	}
	if resp := ev.FunctionResponse(); resp != nil {
		return Classification{Kind: KindToolCallComplete, Response: resp}
	}
	if text := ev.Text(); text != "" {
		if ev.Partial {
			return Classification{Kind: KindTextDelta, Text: text}
		}
		return Classification{Kind: KindTextFinal, Text: text}
	}
	return Classification{Kind: KindOther}
}
