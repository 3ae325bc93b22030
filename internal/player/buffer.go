// ABOUTME: Jitter buffer of decoded frames ordered by presentation time
// ABOUTME: Enforces dedup, late-drop, and buffer-ahead bookkeeping
package player

import (
	"container/heap"
	"log"
	"sync"

	"github.com/Sendspin/sendspin-go/internal/audio"
	"github.com/Sendspin/sendspin-go/internal/timesync"
)

// DefaultMaxBufferAheadMs sizes the default queue-length bound, assuming
// 10ms chunks; the buffer itself bounds chunk count, not duration
const DefaultMaxBufferAheadMs = 2000

// JitterBuffer holds decoded frames awaiting their release instant,
// ordered ascending by presentation timestamp. Frames whose shifted
// presentation instant has already passed at insert time are dropped as
// late; duplicate timestamps are dropped.
// Written by the network context, drained by the audio context.
type JitterBuffer struct {
	mu        sync.Mutex
	queue     *frameQueue
	queued    map[int64]struct{} // presentation timestamps currently queued
	maxQueued int
	maxEnd    int64 // highest queued frame end (ts + duration)
	lateDrops int64

	filter *timesync.Filter

	// playoutOffsetMicros shifts both the insert late-check and the
	// scheduler release target so the two stay consistent
	playoutOffsetMicros int64
}

// NewJitterBuffer creates a jitter buffer. maxQueued bounds the queue
// length; zero means a default sized for DefaultMaxBufferAheadMs of
// 10ms chunks.
func NewJitterBuffer(filter *timesync.Filter, maxQueued int, playoutOffsetMs int) *JitterBuffer {
	if maxQueued <= 0 {
		maxQueued = DefaultMaxBufferAheadMs / 10
	}

	return &JitterBuffer{
		queue:               newFrameQueue(),
		queued:              make(map[int64]struct{}),
		maxQueued:           maxQueued,
		filter:              filter,
		playoutOffsetMicros: int64(clampPlayoutOffsetMs(playoutOffsetMs)) * 1000,
	}
}

// clampPlayoutOffsetMs bounds the playout offset to [-1000, +1000] ms
func clampPlayoutOffsetMs(ms int) int {
	if ms < -1000 {
		return -1000
	}
	if ms > 1000 {
		return 1000
	}
	return ms
}

// SetPlayoutOffsetMs updates the playout offset.
func (b *JitterBuffer) SetPlayoutOffsetMs(ms int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playoutOffsetMicros = int64(clampPlayoutOffsetMs(ms)) * 1000
}

// PlayoutOffsetMicros returns the playout offset in microseconds.
func (b *JitterBuffer) PlayoutOffsetMicros() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playoutOffsetMicros
}

// Insert adds a decoded frame. Frames whose shifted presentation instant
// has already passed are counted as late drops; duplicates and overflow
// are dropped silently. Returns whether the frame was queued.
func (b *JitterBuffer) Insert(f audio.Frame) bool {
	serverNow, clockReady := b.filter.ClientToServer(timesync.NowMicros())

	b.mu.Lock()
	defer b.mu.Unlock()

	if clockReady && f.Timestamp+b.playoutOffsetMicros < serverNow {
		b.lateDrops++
		return false
	}

	if _, dup := b.queued[f.Timestamp]; dup {
		return false
	}

	if b.queue.Len() >= b.maxQueued {
		log.Printf("Jitter buffer full (%d frames), dropping chunk ts=%d", b.queue.Len(), f.Timestamp)
		return false
	}

	heap.Push(b.queue, f)
	b.queued[f.Timestamp] = struct{}{}
	if end := f.Timestamp + f.Duration; end > b.maxEnd {
		b.maxEnd = end
	}
	return true
}

// PopDue removes and returns the earliest frame whose shifted presentation
// instant has arrived, or false if none is due.
func (b *JitterBuffer) PopDue(serverNow int64) (audio.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue.Len() == 0 {
		return audio.Frame{}, false
	}

	f := b.queue.Peek()
	if f.Timestamp+b.playoutOffsetMicros > serverNow {
		return audio.Frame{}, false
	}

	heap.Pop(b.queue)
	delete(b.queued, f.Timestamp)
	return f, true
}

// CountLateDrop records a frame that was popped too late to write.
func (b *JitterBuffer) CountLateDrop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lateDrops++
}

// Clear flushes all queued frames, e.g. on seek or stream end.
func (b *JitterBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = newFrameQueue()
	b.queued = make(map[int64]struct{})
	b.maxEnd = 0
}

// Len returns the number of queued frames.
func (b *JitterBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// LateDrops returns the number of frames dropped for lateness.
func (b *JitterBuffer) LateDrops() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lateDrops
}

// BufferAheadMs reports how far ahead of serverNow the buffered audio
// extends. Zero when the buffer is empty or everything queued is late.
func (b *JitterBuffer) BufferAheadMs(serverNow int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue.Len() == 0 {
		return 0
	}

	ahead := b.maxEnd - serverNow
	if ahead < 0 {
		return 0
	}
	return ahead / 1000
}

// frameQueue is a priority queue of frames keyed on presentation timestamp
type frameQueue struct {
	items []audio.Frame
}

func newFrameQueue() *frameQueue {
	q := &frameQueue{}
	heap.Init(q)
	return q
}

// Implement heap.Interface
func (q *frameQueue) Len() int { return len(q.items) }

func (q *frameQueue) Less(i, j int) bool {
	return q.items[i].Timestamp < q.items[j].Timestamp
}

func (q *frameQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *frameQueue) Push(x interface{}) {
	q.items = append(q.items, x.(audio.Frame))
}

func (q *frameQueue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}

func (q *frameQueue) Peek() audio.Frame {
	return q.items[0]
}
