package capture

import (
	"sync"

	"github.com/glintlabs/glint/internal/models"
)

// DefaultCapacity bounds how many screenshots wait for the next question.
const DefaultCapacity = 10

// Queue is a bounded FIFO of screenshots captured out-of-band. Capture
// producers and the orchestrator consumer run on independent goroutines,
// so every operation takes the mutex; none of them block beyond it.
// Eviction is oldest-first, never LRU: entries are only ever consumed
// all at once by DrainAll.
type Queue struct {
	mu       sync.Mutex
	entries  []models.ScreenshotEntry
	capacity int
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		entries:  make([]models.ScreenshotEntry, 0, capacity),
		capacity: capacity,
	}
}

// Enqueue appends an entry, evicting the oldest one when the queue would
// exceed its capacity.
func (q *Queue) Enqueue(entry models.ScreenshotEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, entry)
	if len(q.entries) > q.capacity {
		// Shift instead of reslicing so the backing array does not pin
		// evicted image bytes.
		copy(q.entries, q.entries[1:])
		q.entries[len(q.entries)-1] = models.ScreenshotEntry{}
		q.entries = q.entries[:len(q.entries)-1]
	}
}

// DrainAll returns all entries in insertion order and empties the queue in
// one locked step. A concurrent Enqueue lands either entirely before or
// entirely after the drain.
func (q *Queue) DrainAll() []models.ScreenshotEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}
	drained := make([]models.ScreenshotEntry, len(q.entries))
	copy(drained, q.entries)
	q.entries = q.entries[:0]
	return drained
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) Empty() bool {
	return q.Len() == 0
}
