package suggest

import "strings"

// Question type labels for a completed turn's text.
const (
	QuestionYesNo     = "yes_no"
	QuestionChoice    = "choice"
	QuestionNumeric   = "numeric"
	QuestionState     = "state"
	QuestionOpenEnded = "open_ended"
)

var interrogatives = []string{
	"what", "which", "who", "whose", "where", "when", "why", "how",
	"is", "are", "do", "does", "did", "can", "could", "should", "would", "will",
}

// ClassifyQuestion labels the completed turn's text so the client can pick
// an input affordance (buttons, number pad, free text). Non-questions are
// always open_ended.
func ClassifyQuestion(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return QuestionOpenEnded
	}

	question := strings.HasSuffix(t, "?")
	if !question {
		first, _, _ := strings.Cut(t, " ")
		for _, w := range interrogatives {
			if first == w {
				question = true
				break
			}
		}
	}
	if !question {
		return QuestionOpenEnded
	}

	switch {
	case strings.Contains(t, "yes") && strings.Contains(t, "no"):
		return QuestionYesNo
	case strings.HasPrefix(t, "what") || strings.HasPrefix(t, "which"):
		return QuestionChoice
	case strings.Contains(t, "how many") || strings.Contains(t, "number"):
		return QuestionNumeric
	case strings.Contains(t, "state") || strings.Contains(t, "status"):
		return QuestionState
	default:
		return QuestionOpenEnded
	}
}
