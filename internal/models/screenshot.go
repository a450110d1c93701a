package models

import "time"

// ScreenshotEntry is one captured screen image awaiting consumption by the
// next request. Entries are never mutated after capture.
type ScreenshotEntry struct {
	ImageBytes []byte
	Width      int
	Height     int
	CapturedAt time.Time
}
