package orchestrator

import (
	"sync"

	"github.com/glintlabs/glint/internal/models"
)

// requestState is the single authoritative copy of the request lifecycle
// state. All mutation goes through generation-checked methods: every
// submission gets a new generation, and writes carrying a stale generation
// are dropped. That keeps a superseded stream's late deltas from touching
// the state of the submission that replaced it.
//
// Invariant: at most one of loading/streaming is true; answer is cleared
// exactly once per submission, in beginSubmission, never mid-stream.
type requestState struct {
	mu         sync.RWMutex
	generation uint64

	visible      bool
	loading      bool
	streaming    bool
	question     string
	answer       string
	showComposer bool
	err          error
}

func newRequestState() *requestState {
	return &requestState{
		showComposer: true,
	}
}

// Snapshot returns an immutable copy for observers.
func (s *requestState) Snapshot() models.RequestState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.RequestState{
		Visible:      s.visible,
		Loading:      s.loading,
		Streaming:    s.streaming,
		Question:     s.question,
		Answer:       s.answer,
		ShowComposer: s.showComposer,
		Err:          s.err,
	}
}

// beginSubmission atomically enters Loading for a new question and returns
// the new generation. This is the only place answer is reset.
func (s *requestState) beginSubmission(question string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.visible = true
	s.loading = true
	s.streaming = false
	s.question = question
	s.answer = ""
	s.showComposer = false
	s.err = nil
	return s.generation
}

// appendDelta grows the answer monotonically. The first delta of a stream
// flips Loading to Streaming.
func (s *requestState) appendDelta(gen uint64, delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	if s.loading {
		s.loading = false
		s.streaming = true
	}
	s.answer += delta
	return true
}

// finish returns to idle after a completed stream, keeping the answer on
// screen.
func (s *requestState) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.loading = false
	s.streaming = false
	s.err = nil
}

// finishWithError returns to idle with a terminal error. Accumulated
// answer text is kept: partial answers are not discarded.
func (s *requestState) finishWithError(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.loading = false
	s.streaming = false
	s.err = err
}

// settle clears the busy flags without touching answer or err. Used by
// the guaranteed-run cleanup path, which must not erase a terminal error
// recorded moments earlier.
func (s *requestState) settle(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.loading = false
	s.streaming = false
}

// resetIdle drops everything back to the initial hidden state. Bumps the
// generation so any in-flight writes become stale.
func (s *requestState) resetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.visible = false
	s.loading = false
	s.streaming = false
	s.question = ""
	s.answer = ""
	s.showComposer = true
	s.err = nil
}

func (s *requestState) busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading || s.streaming
}

func (s *requestState) visibleWithContent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible && s.answer != ""
}

func (s *requestState) isVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}

// flipComposer toggles the input surface without touching the request.
func (s *requestState) flipComposer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showComposer = !s.showComposer
}

// show reveals the surface with the composer open, without submitting.
func (s *requestState) show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = true
	s.showComposer = true
}
