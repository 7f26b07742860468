package gvsp

import (
	"sync"

	"go.uber.org/atomic"

	"gencam.dev/gencam/pkg/chunks"
)

// CompletedFrame is a fully reassembled block handed to the consumer
// (spec.md §4.5.2). Chunks is nil when the trailer carried no chunk
// bytes at all.
type CompletedFrame struct {
	BlockID     uint16
	Timestamp   uint64
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Data        []byte
	Chunks      *chunks.Set
}

// FrameQueue is a bounded FIFO of completed frames. When full, the
// oldest frame is evicted to make room for the newest and a dropped
// counter is incremented (spec.md §4.5.5/§8).
type FrameQueue struct {
	mu       sync.Mutex
	buf      []CompletedFrame
	capacity int
	dropped  atomic.Uint64
}

// NewFrameQueue creates a queue with the given bounded capacity.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameQueue{capacity: capacity}
}

// Push inserts frame, evicting the oldest queued frame first if the
// queue is already at capacity.
func (q *FrameQueue) Push(frame CompletedFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) >= q.capacity {
		q.buf = q.buf[1:]
		q.dropped.Add(1)
	}
	q.buf = append(q.buf, frame)
}

// Pop removes and returns the oldest queued frame, if any.
func (q *FrameQueue) Pop() (CompletedFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return CompletedFrame{}, false
	}
	frame := q.buf[0]
	q.buf = q.buf[1:]
	return frame, true
}

// Len reports the number of frames currently queued.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// DroppedCount reports the total number of frames evicted by
// backpressure since the queue was created.
func (q *FrameQueue) DroppedCount() uint64 {
	return q.dropped.Load()
}
