package components

import (
	"strings"

	"github.com/glintlabs/glint/internal/models"
	"github.com/glintlabs/glint/ui/styles"
)

// RenderAnswerSurface renders the question header and the (possibly still
// streaming) answer text.
func RenderAnswerSurface(state models.RequestState, width int) string {
	if !state.Visible {
		return styles.HintStyle().Render("Press Enter to ask - Ctrl+P captures the screen for context") + "\n\n"
	}

	var b strings.Builder

	if state.Question != "" {
		b.WriteString(styles.QuestionStyle().Render("You: "+state.Question) + "\n\n")
	}

	// Partial answers stay on screen even when the stream ended in an error
	if state.Answer != "" {
		b.WriteString(styles.AnswerStyle().Render("Assistant: "+state.Answer) + "\n\n")
	} else if state.Loading {
		b.WriteString(styles.HintStyle().Render("Waiting for the first token") + "\n\n")
	}
	if state.Err != nil {
		b.WriteString(styles.ErrorStyle().Render(state.Err.Error()) + "\n\n")
	}

	return b.String()
}
