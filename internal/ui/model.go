// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Renders connection, stream, metadata, and clock health
package ui

import (
	"fmt"
	"sync"

	"github.com/Sendspin/sendspin-go/internal/state"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// StatusMsg carries a state snapshot into the TUI
type StatusMsg struct {
	Connection *state.ConnectionState
	ServerName string
	Stream     *state.StreamDescriptor
	Metadata   *state.Metadata
	Buffer     *state.BufferStats
	PositionMs int
	Volume     *int
	Muted      *bool

	// Process health, sampled on a slow ticker
	Goroutines int
	MemAlloc   uint64
	MemSys     uint64
}

// VolumeChangeMsg reports a user volume adjustment
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// CommandMsg reports a user transport command
type CommandMsg struct {
	Action string // "play", "pause", "next", "previous"
}

// QuitMsg reports a user quit request
type QuitMsg struct{}

// Controls holds channels carrying user actions out of the TUI
type Controls struct {
	Volume   chan VolumeChangeMsg
	Commands chan CommandMsg
	Quit     chan QuitMsg

	quitOnce sync.Once
}

// NewControls creates the TUI control channels.
func NewControls() *Controls {
	return &Controls{
		Volume:   make(chan VolumeChangeMsg, 10),
		Commands: make(chan CommandMsg, 10),
		Quit:     make(chan QuitMsg, 1),
	}
}

// RequestQuit closes the quit channel so every listener unblocks.
func (c *Controls) RequestQuit() {
	c.quitOnce.Do(func() { close(c.Quit) })
}

// Model represents the TUI state
type Model struct {
	controls *Controls

	connection state.ConnectionState
	serverName string
	stream     state.StreamDescriptor
	metadata   state.Metadata
	buffer     state.BufferStats
	positionMs int
	volume     int
	muted      bool
	playing    bool

	goroutines int
	memAlloc   uint64
	memSys     uint64

	width  int
	height int
}

// NewModel creates a TUI model.
func NewModel(controls *Controls) Model {
	return Model{
		controls: controls,
		volume:   100,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// handleKey processes keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.RequestQuit()
		return m, tea.Quit

	case "up":
		m.volume = min(100, m.volume+5)
		m.sendVolume()

	case "down":
		m.volume = max(0, m.volume-5)
		m.sendVolume()

	case "m":
		m.muted = !m.muted
		m.sendVolume()

	case " ", "space":
		action := "play"
		if m.playing {
			action = "pause"
		}
		m.playing = !m.playing
		m.sendCommand(action)

	case "n":
		m.sendCommand("next")

	case "p":
		m.sendCommand("previous")
	}

	return m, nil
}

func (m Model) sendVolume() {
	select {
	case m.controls.Volume <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

func (m Model) sendCommand(action string) {
	select {
	case m.controls.Commands <- CommandMsg{Action: action}:
	default:
	}
}

// applyStatus merges a status snapshot into the model
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connection != nil {
		m.connection = *msg.Connection
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Stream != nil {
		m.stream = *msg.Stream
		m.playing = m.stream.PlaybackState == "playing"
	}
	if msg.Metadata != nil {
		m.metadata = *msg.Metadata
	}
	if msg.Buffer != nil {
		m.buffer = *msg.Buffer
	}
	if msg.PositionMs > 0 {
		m.positionMs = msg.PositionMs
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
	if msg.Goroutines > 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
		m.memSys = msg.MemSys
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := titleStyle.Render("Sendspin Player") + "\n\n"

	connStyle := badStyle
	if m.connection == state.Connected {
		connStyle = okStyle
	}
	s += labelStyle.Render("Server     ") + connStyle.Render(m.connection.String())
	if m.serverName != "" {
		s += valueStyle.Render(" " + m.serverName)
	}
	s += "\n"

	if m.stream.Codec != "" {
		s += labelStyle.Render("Stream     ") + valueStyle.Render(fmt.Sprintf(
			"%s %dHz %dch %d-bit [%s]",
			m.stream.Codec, m.stream.SampleRate, m.stream.Channels, m.stream.BitDepth,
			m.stream.PlaybackState)) + "\n"
	}
	if m.stream.GroupName != "" {
		s += labelStyle.Render("Group      ") + valueStyle.Render(m.stream.GroupName) + "\n"
	}

	if m.metadata.Title != "" {
		s += "\n"
		s += labelStyle.Render("Track      ") + valueStyle.Render(m.metadata.Title) + "\n"
		s += labelStyle.Render("Artist     ") + valueStyle.Render(m.metadata.Artist) + "\n"
		if m.metadata.Album != "" {
			s += labelStyle.Render("Album      ") + valueStyle.Render(m.metadata.Album) + "\n"
		}
		if m.metadata.Progress != nil {
			s += labelStyle.Render("Position   ") + valueStyle.Render(fmt.Sprintf(
				"%s / %s", formatMs(m.positionMs), formatMs(m.metadata.Progress.DurationMs))) + "\n"
		}
	}

	s += "\n"
	clockStyle := badStyle
	clockText := fmt.Sprintf("syncing (%d measurements)", m.buffer.ClockMeasurements)
	if m.buffer.ClockConverged {
		clockStyle = okStyle
		clockText = fmt.Sprintf("locked ±%.0fµs, drift %.1fppm",
			m.buffer.ClockErrorMicros, m.buffer.ClockDriftPPM)
	}
	s += labelStyle.Render("Clock      ") + clockStyle.Render(clockText) + "\n"
	s += labelStyle.Render("Buffer     ") + valueStyle.Render(fmt.Sprintf(
		"%d chunks, %dms ahead, %d late drops",
		m.buffer.QueuedChunks, m.buffer.BufferAheadMs, m.buffer.LateDrops)) + "\n"

	vol := fmt.Sprintf("%d%%", m.volume)
	if m.muted {
		vol += " (muted)"
	}
	s += labelStyle.Render("Volume     ") + valueStyle.Render(vol) + "\n"

	if m.goroutines > 0 {
		s += labelStyle.Render("Runtime    ") + valueStyle.Render(fmt.Sprintf(
			"%d goroutines, %s alloc / %s sys",
			m.goroutines, formatBytes(m.memAlloc), formatBytes(m.memSys))) + "\n"
	}

	s += "\n" + helpStyle.Render("space play/pause · n next · p prev · ↑/↓ volume · m mute · q quit")

	return s
}

// formatMs renders milliseconds as m:ss
func formatMs(ms int) string {
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// formatBytes renders a byte count as MiB
func formatBytes(b uint64) string {
	return fmt.Sprintf("%.1fMiB", float64(b)/(1<<20))
}
