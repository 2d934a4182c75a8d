package audio

import (
	"sync"
)

// FrameBuffer is a thread-safe bounded queue of frames. When the buffer
// is full the oldest frame is dropped so a slow consumer never blocks
// the audio producer; the number of dropped frames is tracked so the
// consumer can flag the result as lossy.
type FrameBuffer struct {
	mu      sync.Mutex
	frames  []Frame
	limit   int
	dropped uint64
}

// NewFrameBuffer creates a buffer holding at most limit frames.
func NewFrameBuffer(limit int) *FrameBuffer {
	if limit <= 0 {
		limit = 1
	}
	return &FrameBuffer{
		frames: make([]Frame, 0, limit),
		limit:  limit,
	}
}

// Push appends a frame, evicting the oldest frame when full.
// It reports whether an eviction happened.
func (b *FrameBuffer) Push(f Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := false
	if len(b.frames) >= b.limit {
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:len(b.frames)-1]
		b.dropped++
		evicted = true
	}
	b.frames = append(b.frames, f)
	return evicted
}

// Pop removes and returns the oldest frame.
func (b *FrameBuffer) Pop() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return Frame{}, false
	}
	f := b.frames[0]
	copy(b.frames, b.frames[1:])
	b.frames = b.frames[:len(b.frames)-1]
	return f, true
}

// Drain removes and returns all buffered frames in order.
func (b *FrameBuffer) Drain() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	b.frames = b.frames[:0]
	return out
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped returns the total number of frames evicted since creation
// or the last Reset.
func (b *FrameBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset clears the buffer and the dropped counter.
func (b *FrameBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = b.frames[:0]
	b.dropped = 0
}
