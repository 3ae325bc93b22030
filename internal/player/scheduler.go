// ABOUTME: Playout scheduler releasing frames at their presentation instant
// ABOUTME: Gates on clock convergence and tracks playback statistics
package player

import (
	"context"
	"encoding/binary"
	"log"
	"time"

	"github.com/Sendspin/sendspin-go/internal/audio"
	"github.com/Sendspin/sendspin-go/internal/state"
	"github.com/Sendspin/sendspin-go/internal/timesync"
)

const (
	// TickInterval is the scheduler cadence
	TickInterval = 5 * time.Millisecond

	// statsEveryTicks spaces out buffer stats publication (~500ms)
	statsEveryTicks = 100
)

// Sink is the platform audio output adapter. Write must not block the
// audio context.
type Sink interface {
	Open(sampleRate, channels, bitDepth int) error
	Write(pcm []byte) error
	Pause()
	Close() error
}

// SchedulerStats tracks playback counters
type SchedulerStats struct {
	Received int64
	Played   int64
}

// Scheduler drains the jitter buffer to the sink on a periodic tick.
// While the clock filter has not converged it holds all writes and keeps
// the sink paused, so playback starts sample-accurate rather than
// jumping when the offset settles.
type Scheduler struct {
	filter  *timesync.Filter
	buffer  *JitterBuffer
	sink    Sink
	onStats func(state.BufferStats)

	gateOpen bool
	played   int64
}

// NewScheduler creates a playout scheduler. onStats, if non-nil, receives
// periodic buffer statistics from the scheduler tick.
func NewScheduler(filter *timesync.Filter, buffer *JitterBuffer, sink Sink, onStats func(state.BufferStats)) *Scheduler {
	return &Scheduler{
		filter:  filter,
		buffer:  buffer,
		sink:    sink,
		onStats: onStats,
	}
}

// Run ticks the scheduler until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	// Until the clock converges the sink stays paused and silent
	if !s.filter.HasConverged() {
		s.sink.Pause()
	}

	tickCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
			tickCount++
			if tickCount%statsEveryTicks == 0 {
				s.publishStats()
			}
		}
	}
}

// tick releases every frame whose shifted presentation instant has arrived.
func (s *Scheduler) tick() {
	if !s.filter.HasConverged() {
		if s.gateOpen {
			// Convergence lost after a reset; hold playback again
			s.gateOpen = false
			s.sink.Pause()
		}
		return
	}

	if !s.gateOpen {
		s.gateOpen = true
		log.Printf("Clock converged (offset=%.0fµs, error=%.0fµs), releasing playback",
			s.filter.EstimatedOffsetMicros(), s.filter.EstimatedErrorMicros())
	}

	serverNow, ok := s.filter.ClientToServer(timesync.NowMicros())
	if !ok {
		return
	}

	for {
		f, due := s.buffer.PopDue(serverNow)
		if !due {
			return
		}

		// A frame that has entirely elapsed is a late drop, not a write
		if f.Timestamp+f.Duration < serverNow {
			s.buffer.CountLateDrop()
			continue
		}

		if err := s.sink.Write(pcmBytes(f)); err != nil {
			log.Printf("Sink write failed: %v", err)
			continue
		}
		s.played++
	}
}

// publishStats snapshots buffer and clock health for observers.
func (s *Scheduler) publishStats() {
	if s.onStats == nil {
		return
	}

	serverNow, _ := s.filter.ClientToServer(timesync.NowMicros())

	s.onStats(state.BufferStats{
		QueuedChunks:      s.buffer.Len(),
		BufferAheadMs:     s.buffer.BufferAheadMs(serverNow),
		LateDrops:         s.buffer.LateDrops(),
		ClockOffsetMicros: int64(s.filter.EstimatedOffsetMicros()),
		ClockDriftPPM:     s.filter.EstimatedDriftPPM(),
		RoundTripMicros:   s.filter.LastRoundTripMicros(),
		ClockConverged:    s.filter.HasConverged(),
		ClockMeasurements: s.filter.MeasurementCount(),
		ClockErrorMicros:  s.filter.EstimatedErrorMicros(),
	})
}

// Played returns how many frames have been written to the sink.
func (s *Scheduler) Played() int64 {
	return s.played
}

// pcmBytes serializes a frame's samples at its stream bit depth
func pcmBytes(f audio.Frame) []byte {
	if f.Format.BitDepth == 24 {
		out := make([]byte, len(f.Samples)*3)
		for i, sample := range f.Samples {
			b := audio.SampleTo24Bit(sample)
			out[i*3] = b[0]
			out[i*3+1] = b[1]
			out[i*3+2] = b[2]
		}
		return out
	}

	out := make([]byte, len(f.Samples)*2)
	for i, sample := range f.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(sample)))
	}
	return out
}
