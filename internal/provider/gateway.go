package provider

import (
	"context"

	"github.com/glintlabs/glint/internal/models"
)

// Payload is one complete provider request: the question plus any screen
// context attached to it.
type Payload struct {
	Model        string
	SystemPrompt string
	Question     string
	History      []models.Message
	Screenshots  []models.ScreenshotEntry
}

// HasImages reports whether this payload is multimodal.
func (p Payload) HasImages() bool {
	return len(p.Screenshots) > 0
}

// WithoutImages returns an equivalent text-only payload. Used by the
// one-shot multimodal fallback: question and history are unchanged.
func (p Payload) WithoutImages() Payload {
	stripped := p
	stripped.Screenshots = nil
	return stripped
}

// Gateway opens a cancellable answer stream against the remote provider.
// Cancellation travels through the context handed to Open: cancelling it
// unblocks any read pending on the returned handle within one read cycle.
type Gateway interface {
	Open(ctx context.Context, payload Payload) (StreamHandle, error)
}

// StreamHandle is one open answer stream. Read drives the stream to
// completion, invoking onDelta per fragment, and returns the accumulated
// text - including the partial text on early termination. Close releases
// the underlying transport and is safe to call more than once.
type StreamHandle interface {
	Read(ctx context.Context, onDelta func(delta string)) (string, error)
	Close() error
}
