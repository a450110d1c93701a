package capture

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/glintlabs/glint/internal/models"
)

// Trigger produces a fresh screenshot on demand. The orchestrator invokes
// it only when the queue is empty.
type Trigger interface {
	CaptureNow() (models.ScreenshotEntry, error)
}

// ScreenTrigger captures the primary display.
type ScreenTrigger struct{}

func NewScreenTrigger() *ScreenTrigger {
	return &ScreenTrigger{}
}

func (t *ScreenTrigger) CaptureNow() (models.ScreenshotEntry, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return models.ScreenshotEntry{}, fmt.Errorf("no active displays")
	}

	bounds := screenshot.GetDisplayBounds(0)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return models.ScreenshotEntry{}, fmt.Errorf("failed to capture display: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return models.ScreenshotEntry{}, fmt.Errorf("failed to encode capture: %w", err)
	}

	return models.ScreenshotEntry{
		ImageBytes: buf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: time.Now(),
	}, nil
}
