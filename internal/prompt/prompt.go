// Package prompt assembles the system prompt for a submission. Pure
// functions only: the orchestrator passes everything in.
package prompt

import (
	"fmt"
	"strings"
)

// ProfileKind selects the assistant persona.
type ProfileKind string

const (
	KindAssistant ProfileKind = "assistant"
	KindInterview ProfileKind = "interview"
)

const assistantPreamble = `You are a helpful screen-aware assistant. The user may attach ` +
	`screenshots of their screen; when present, ground your answer in what they show. ` +
	`Answer directly and concisely.`

const interviewPreamble = `You are assisting the user during a live conversation. Screenshots, ` +
	`when attached, show what is currently on the user's screen. Suggest clear, confident ` +
	`answers the user could give, keeping them short enough to say out loud.`

// BuildSystemPrompt returns the system prompt for one submission.
// historyContext carries recent transcript lines for continuity;
// searchEnabled adds a hint that retrieved web context may follow.
func BuildSystemPrompt(kind ProfileKind, historyContext []string, searchEnabled bool) string {
	var b strings.Builder

	switch kind {
	case KindInterview:
		b.WriteString(interviewPreamble)
	default:
		b.WriteString(assistantPreamble)
	}

	if len(historyContext) > 0 {
		b.WriteString("\n\nRecent conversation:\n")
		for _, line := range historyContext {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	if searchEnabled {
		b.WriteString("\nWeb search results may be appended to the question; prefer them over stale knowledge.")
	}

	return b.String()
}
