package hexa

import (
	"sync"
	"sync/atomic"
	"time"
)

// deviceQueue is one device's FIFO of work chunks plus the metrics the
// scheduler and monitor use for steal decisions. The slice and the time
// fields are guarded by mu; activeWorkers is atomic so the monitor and
// WaitForCompletion can observe it without taking the queue lock.
type deviceQueue struct {
	mu     sync.Mutex
	chunks []WorkChunk
	signal chan struct{} // single-slot wakeup for blocked GetWork callers

	activeWorkers atomic.Int32

	// Guarded by mu.
	avgProcessingTime float64 // seconds, EMA
	chunksProcessed   int
	allocatedChunks   int // steal accounting: planned minus migrated
	initialChunks     int // reporting: the coordinator's initial allocation
	lastWorkTime      time.Time
}

func (q *deviceQueue) init() {
	q.signal = make(chan struct{}, 1)
}

// notify wakes one blocked GetWork caller. Other waiters re-check on their
// next poll interval.
func (q *deviceQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// size returns the queue length under lock.
func (q *deviceQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// push appends chunks under lock and returns the new length.
func (q *deviceQueue) push(chunks ...WorkChunk) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = append(q.chunks, chunks...)
	return len(q.chunks)
}

// drain removes and returns every queued chunk under lock.
func (q *deviceQueue) drain() []WorkChunk {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.chunks
	q.chunks = nil
	return out
}
