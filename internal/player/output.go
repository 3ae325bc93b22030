// ABOUTME: Audio output sink using the oto library
// ABOUTME: Handles PCM playback with software volume and mute
package player

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Output plays PCM through oto and applies software volume. It implements
// the Sink interface and doubles as the platform volume adapter.
type Output struct {
	mu        sync.Mutex
	otoCtx    *oto.Context
	ready     bool
	suspended bool
	volume    int
	muted     bool
}

// NewOutput creates an audio output at full volume.
func NewOutput() *Output {
	return &Output{
		volume: 100,
	}
}

// Open sets up oto with the specified format.
func (o *Output) Open(sampleRate, channels, bitDepth int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.ready = true
	o.suspended = false

	log.Printf("Audio output initialized: %dHz, %d channels, %d-bit", sampleRate, channels, bitDepth)

	return nil
}

// Write plays one chunk of 16-bit little-endian PCM with volume applied.
func (o *Output) Write(pcm []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	if o.suspended {
		if err := o.otoCtx.Resume(); err != nil {
			return fmt.Errorf("failed to resume output: %w", err)
		}
		o.suspended = false
	}

	out := applyVolume(pcm, o.volume, o.muted)

	player := o.otoCtx.NewPlayer(bytes.NewReader(out))
	player.Play()

	return nil
}

// Pause suspends the output device.
func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready && !o.suspended {
		if err := o.otoCtx.Suspend(); err != nil {
			log.Printf("Failed to suspend output: %v", err)
			return
		}
		o.suspended = true
	}
}

// SetVolume sets the playback volume (0-100).
func (o *Output) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()

	log.Printf("Volume set to %d", volume)
}

// SetMuted sets the mute state.
func (o *Output) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()

	log.Printf("Muted: %v", muted)
}

// Volume returns the current volume.
func (o *Output) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// IsMuted returns the mute state.
func (o *Output) IsMuted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// Close releases the output device.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil && o.ready {
		if err := o.otoCtx.Suspend(); err != nil {
			log.Printf("Failed to suspend output on close: %v", err)
		}
		o.ready = false
	}
	return nil
}

// applyVolume scales 16-bit LE PCM by the volume multiplier
func applyVolume(pcm []byte, volume int, muted bool) []byte {
	multiplier := getVolumeMultiplier(volume, muted)
	if multiplier == 1.0 {
		return pcm
	}

	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		scaled := int16(float64(sample) * multiplier)
		binary.LittleEndian.PutUint16(out[i:], uint16(scaled))
	}
	return out
}

// getVolumeMultiplier calculates the volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
