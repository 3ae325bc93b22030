// ABOUTME: Tests for the jitter buffer
// ABOUTME: Covers late-drop, dedup, ordering, buffer-ahead, and clearing
package player

import (
	"testing"

	"github.com/Sendspin/sendspin-go/internal/audio"
	"github.com/Sendspin/sendspin-go/internal/timesync"
)

// readyFilter builds a filter whose conversions are the identity
// (zero offset, zero drift)
func readyFilter() *timesync.Filter {
	f := timesync.NewFilter()
	f.Update(0, 100, 1_000)
	f.Update(0, 100, 2_000)
	return f
}

// convergedFilter builds an identity filter past the convergence gate
func convergedFilter() *timesync.Filter {
	f := timesync.NewFilter()
	for i := 1; i <= 14; i++ {
		f.Update(0, 100, int64(i)*1_000_000)
	}
	return f
}

func frameAt(ts, duration int64) audio.Frame {
	return audio.Frame{
		Timestamp: ts,
		Duration:  duration,
		Samples:   make([]int32, 960),
		Format:    audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16},
	}
}

func TestLateFrameDropped(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 0, 0)

	// With identity conversion, a timestamp 100ms in the past is late
	late := frameAt(timesync.NowMicros()-100_000, 10_000)

	if b.Insert(late) {
		t.Error("expected late frame rejected")
	}
	if b.LateDrops() != 1 {
		t.Errorf("expected 1 late drop, got %d", b.LateDrops())
	}
	if b.Len() != 0 {
		t.Errorf("expected queue unchanged, got %d frames", b.Len())
	}
}

func TestDuplicateTimestampDropped(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 0, 0)

	ts := timesync.NowMicros() + 500_000
	if !b.Insert(frameAt(ts, 10_000)) {
		t.Fatal("expected first insert accepted")
	}
	if b.Insert(frameAt(ts, 10_000)) {
		t.Error("expected duplicate timestamp rejected")
	}

	if b.Len() != 1 {
		t.Errorf("expected 1 queued frame, got %d", b.Len())
	}
	if b.LateDrops() != 0 {
		t.Errorf("duplicates are not late drops, got %d", b.LateDrops())
	}
}

func TestNegativePlayoutOffsetDropsSoonFrames(t *testing.T) {
	// -200ms offset: frames less than 200ms ahead are already due
	b := NewJitterBuffer(readyFilter(), 0, -200)

	soon := frameAt(timesync.NowMicros()+100_000, 10_000)
	if b.Insert(soon) {
		t.Error("expected frame inside the catch-up window rejected")
	}
	if b.LateDrops() != 1 {
		t.Errorf("expected 1 late drop, got %d", b.LateDrops())
	}
}

func TestPopDueOrdering(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 0, 0)

	base := timesync.NowMicros() + 200_000
	// Insert out of order
	for _, delta := range []int64{30_000, 10_000, 20_000, 0} {
		if !b.Insert(frameAt(base+delta, 10_000)) {
			t.Fatalf("insert failed for delta %d", delta)
		}
	}

	var popped []int64
	for {
		f, ok := b.PopDue(base + 1_000_000)
		if !ok {
			break
		}
		popped = append(popped, f.Timestamp)
	}

	if len(popped) != 4 {
		t.Fatalf("expected 4 frames popped, got %d", len(popped))
	}
	for i := 1; i < len(popped); i++ {
		if popped[i] <= popped[i-1] {
			t.Errorf("expected strictly ascending timestamps, got %v", popped)
		}
	}
}

func TestPopDueHonorsReleaseInstant(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 0, 0)

	base := timesync.NowMicros() + 500_000
	b.Insert(frameAt(base, 10_000))

	if _, ok := b.PopDue(base - 1); ok {
		t.Error("expected frame held before its presentation instant")
	}
	if f, ok := b.PopDue(base); !ok || f.Timestamp != base {
		t.Error("expected frame released at its presentation instant")
	}
}

func TestNegativeOffsetReleasesEarly(t *testing.T) {
	// -200ms: a frame 100ms in the future is due immediately
	b := NewJitterBuffer(readyFilter(), 0, 0)
	b.SetPlayoutOffsetMs(-200)

	serverNow := timesync.NowMicros() + 1_000_000
	ts := serverNow + 100_000
	b.Insert(frameAt(ts, 10_000))

	if _, ok := b.PopDue(serverNow); !ok {
		t.Error("expected early release under negative playout offset")
	}
}

func TestBufferAhead(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 0, 0)

	serverNow := timesync.NowMicros()
	if b.BufferAheadMs(serverNow) != 0 {
		t.Error("expected zero buffer-ahead when empty")
	}

	// 500ms out, 10ms long
	b.Insert(frameAt(serverNow+500_000, 10_000))

	ahead := b.BufferAheadMs(serverNow)
	if ahead < 500 || ahead > 512 {
		t.Errorf("expected ~510ms buffer-ahead, got %d", ahead)
	}

	if b.BufferAheadMs(serverNow+10_000_000) != 0 {
		t.Error("expected zero buffer-ahead once everything queued is past")
	}
}

func TestClearFlushesQueue(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 0, 0)

	ts := timesync.NowMicros() + 500_000
	b.Insert(frameAt(ts, 10_000))
	b.Clear()

	if b.Len() != 0 {
		t.Errorf("expected empty queue after clear, got %d", b.Len())
	}

	// The same timestamp is insertable again after a clear
	if !b.Insert(frameAt(ts, 10_000)) {
		t.Error("expected re-insert after clear accepted")
	}
}

func TestMaxQueuedBound(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 3, 0)

	base := timesync.NowMicros() + 1_000_000
	for i := int64(0); i < 3; i++ {
		if !b.Insert(frameAt(base+i*10_000, 10_000)) {
			t.Fatalf("insert %d failed", i)
		}
	}

	if b.Insert(frameAt(base+100_000, 10_000)) {
		t.Error("expected insert rejected at capacity")
	}
	if b.Len() != 3 {
		t.Errorf("expected 3 queued frames, got %d", b.Len())
	}
}

func TestPlayoutOffsetClamped(t *testing.T) {
	b := NewJitterBuffer(readyFilter(), 0, 5000)
	if got := b.PlayoutOffsetMicros(); got != 1_000_000 {
		t.Errorf("expected clamp to +1000ms, got %dµs", got)
	}

	b.SetPlayoutOffsetMs(-5000)
	if got := b.PlayoutOffsetMicros(); got != -1_000_000 {
		t.Errorf("expected clamp to -1000ms, got %dµs", got)
	}
}
