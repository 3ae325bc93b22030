// ABOUTME: Tests for the TUI model
// ABOUTME: Covers status merging, key handling, and rendering
package ui

import (
	"strings"
	"testing"

	"github.com/Sendspin/sendspin-go/internal/state"
	tea "github.com/charmbracelet/bubbletea"
)

func TestApplyStatusMerges(t *testing.T) {
	m := NewModel(NewControls())

	conn := state.Connected
	m.applyStatus(StatusMsg{Connection: &conn, ServerName: "den:8927"})
	m.applyStatus(StatusMsg{Stream: &state.StreamDescriptor{Codec: "opus", PlaybackState: "playing"}})

	if m.connection != state.Connected {
		t.Error("expected connection merged")
	}
	if m.serverName != "den:8927" {
		t.Error("expected server name merged")
	}
	if m.stream.Codec != "opus" || !m.playing {
		t.Error("expected stream merged and playing derived")
	}
}

func TestVolumeKeys(t *testing.T) {
	controls := NewControls()
	m := NewModel(controls)
	m.width = 80

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)

	if m.volume != 95 {
		t.Errorf("expected volume 95 after down, got %d", m.volume)
	}

	select {
	case change := <-controls.Volume:
		if change.Volume != 95 {
			t.Errorf("expected volume change 95, got %d", change.Volume)
		}
	default:
		t.Error("expected volume change emitted")
	}
}

func TestPlayPauseToggle(t *testing.T) {
	controls := NewControls()
	m := NewModel(controls)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = next.(Model)

	select {
	case cmd := <-controls.Commands:
		if cmd.Action != "play" {
			t.Errorf("expected play first, got %s", cmd.Action)
		}
	default:
		t.Fatal("expected command emitted")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeySpace})
	_ = next.(Model)

	select {
	case cmd := <-controls.Commands:
		if cmd.Action != "pause" {
			t.Errorf("expected pause second, got %s", cmd.Action)
		}
	default:
		t.Fatal("expected command emitted")
	}
}

func TestViewRendersStatus(t *testing.T) {
	m := NewModel(NewControls())
	m.width = 80
	m.height = 24

	conn := state.Connected
	m.applyStatus(StatusMsg{
		Connection: &conn,
		Stream:     &state.StreamDescriptor{Codec: "flac", SampleRate: 48000, Channels: 2, BitDepth: 16, PlaybackState: "playing"},
		Metadata:   &state.Metadata{Title: "Song", Artist: "Band"},
		Buffer:     &state.BufferStats{QueuedChunks: 12, BufferAheadMs: 240, ClockConverged: true},
	})

	view := m.View()
	for _, want := range []string{"connected", "flac", "Song", "Band", "12 chunks"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	if got := formatMs(125_000); got != "2:05" {
		t.Errorf("expected 2:05, got %s", got)
	}
	if got := formatMs(0); got != "0:00" {
		t.Errorf("expected 0:00, got %s", got)
	}
}
