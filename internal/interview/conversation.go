package interview

import (
	"fmt"
	"strings"

	"medisyn/internal/llm"
)

// Speaker identifies who authored a turn.
type Speaker string

const (
	SpeakerPatient   Speaker = "patient"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message of the interview. Turns are immutable once appended;
// the ordered sequence forms the conversation fed back to the model.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// toMessages translates turns into the gateway's role-tagged history.
func toMessages(turns []Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Speaker == SpeakerAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return msgs
}

// transcript renders the conversation as the "Patient: ...\nAssistant: ..."
// text block interpolated into the report prompt.
func transcript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		label := "Patient"
		if t.Speaker == SpeakerAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Text)
	}
	return b.String()
}
