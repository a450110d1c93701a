package components

import (
	"fmt"
	"strings"

	"github.com/glintlabs/glint/internal/models"
	"github.com/glintlabs/glint/ui/styles"
)

func RenderStatus(status string, state models.RequestState, loadingDots, queueLen, width int) string {
	statusContent := status
	if state.Loading || state.Streaming {
		statusContent += strings.Repeat(".", loadingDots)
	}
	if queueLen > 0 {
		statusContent += fmt.Sprintf("  [%d screenshot(s) queued]", queueLen)
	}

	return styles.StatusStyle(width).Render(statusContent)
}
