// ABOUTME: Observable state store for all client-facing snapshots
// ABOUTME: Connection, stream, metadata, buffer stats, controller, and local player state
package state

// ConnectionState describes the session lifecycle state
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	ConnError
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ConnError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamDescriptor describes the active audio stream
type StreamDescriptor struct {
	Codec         string
	SampleRate    int
	Channels      int
	BitDepth      int
	PlaybackState string // "idle", "playing", "paused", "stopped"
	GroupName     string
}

// TrackProgress reports playback position at the metadata timestamp
type TrackProgress struct {
	PositionMs int
	DurationMs int
	SpeedMilli int // 1000 = 1.0x, 0 = paused
}

// Metadata carries track information anchored to a server-domain timestamp
type Metadata struct {
	Title        string
	Artist       string
	Album        string
	AlbumArtist  string
	Year         int
	TrackNumber  int
	ArtworkURL   string
	ArtworkBytes []byte
	Progress     *TrackProgress
	RepeatMode   string // "off", "one", "all"
	Shuffle      bool
	ServerTS     int64 // Server µs at which Progress.PositionMs was sampled
}

// BufferStats reports jitter buffer and clock health
type BufferStats struct {
	QueuedChunks      int
	BufferAheadMs     int64
	LateDrops         int64
	ClockOffsetMicros int64
	ClockDriftPPM     float64
	RoundTripMicros   int64
	ClockConverged    bool
	ClockMeasurements int
	ClockErrorMicros  float64
}

// ControllerState reports group controller state
type ControllerState struct {
	Volume            int
	Muted             bool
	SupportedCommands []string
}

// LocalPlayerState is this device's volume state. FromServer marks values
// applied from a server command so the UI does not echo them back.
type LocalPlayerState struct {
	Volume     int
	Muted      bool
	FromServer bool
}

// Store holds the authoritative observable snapshot of every state slot.
// It is the only surface external observers read from.
type Store struct {
	Connection  *Observable[ConnectionState]
	Stream      *Observable[StreamDescriptor]
	Metadata    *Observable[Metadata]
	Buffer      *Observable[BufferStats]
	Controller  *Observable[ControllerState]
	LocalPlayer *Observable[LocalPlayerState]
}

// NewStore creates a store with every slot at its initial value.
func NewStore() *Store {
	return &Store{
		Connection:  NewObservable(Disconnected),
		Stream:      NewObservable(StreamDescriptor{PlaybackState: "idle"}),
		Metadata:    NewObservable(Metadata{}),
		Buffer:      NewObservable(BufferStats{}),
		Controller:  NewObservable(ControllerState{}),
		LocalPlayer: NewObservable(LocalPlayerState{Volume: 100}),
	}
}

// Reset returns every slot except the connection state to its initial
// snapshot, as on disconnect.
func (s *Store) Reset() {
	s.Stream.Set(StreamDescriptor{PlaybackState: "idle"})
	s.Metadata.Set(Metadata{})
	s.Buffer.Set(BufferStats{})
	s.Controller.Set(ControllerState{})
	s.LocalPlayer.Set(LocalPlayerState{Volume: 100})
}
