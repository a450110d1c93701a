package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured means no usable model or credential exists.
	ErrNotConfigured = errors.New("no usable model configured")
)

// StatusError is a non-200 response from the provider endpoint.
type StatusError struct {
	Status      int
	BodySnippet string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.BodySnippet)
}

// ErrorKind is the orchestrator-facing classification of an Open failure.
type ErrorKind int

const (
	// KindTransport is any provider failure without a better classification.
	KindTransport ErrorKind = iota
	// KindMultimodalRejected means the provider declined image content.
	KindMultimodalRejected
	// KindNotConfigured means credentials or model are missing.
	KindNotConfigured
	// KindCancelled means the request was superseded or closed.
	KindCancelled
)

// Substrings that providers tend to put in errors rejecting image input.
// This matching is knowingly imprecise - an unrelated 400 can land here -
// but a false positive only costs one harmless text-only retry, so the
// heuristic stays loose. Tighten it here, not in the orchestrator.
var multimodalMarkers = []string{
	"vision",
	"image",
	"multimodal",
	"unsupported",
	"invalid",
	"400",
}

// Classify maps an Open failure to the error kind the orchestrator acts
// on. hadImages gates the multimodal classification: a text-only payload
// can never be multimodal-rejected.
func Classify(err error, hadImages bool) ErrorKind {
	if err == nil {
		return KindTransport
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, ErrNotConfigured) {
		return KindNotConfigured
	}
	if !hadImages {
		return KindTransport
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range multimodalMarkers {
		if strings.Contains(msg, marker) {
			return KindMultimodalRejected
		}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Status == 400 {
		return KindMultimodalRejected
	}

	return KindTransport
}
