// ABOUTME: Sendspin wire message type definitions
// ABOUTME: Defines structs for every JSON control frame the client handles
package protocol

// Message is the top-level wrapper for all JSON control frames
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Frame type discriminators
const (
	TypeHello             = "hello"
	TypeHelloAck          = "hello_ack"
	TypeTimeProbe         = "time_probe"
	TypeTimeProbeResponse = "time_probe_response"
	TypeStream            = "stream"
	TypeStreamClear       = "stream_clear"
	TypeStreamEnd         = "stream_end"
	TypeMetadata          = "metadata"
	TypeController        = "controller"
	TypePlayerVolume      = "player_volume"
	TypePlayerMute        = "player_mute"
	TypeCmd               = "cmd"
	TypeGroupVolume       = "group_volume"
	TypeGroupMute         = "group_mute"
	TypeLocalVolume       = "local_volume"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeGoodbye           = "goodbye"
)

// Hello is sent by clients to initiate the handshake
type Hello struct {
	ClientID   string   `json:"client_id"`
	ClientName string   `json:"client_name"`
	Roles      []string `json:"roles"`
}

// HelloAck is the server's response to hello
type HelloAck struct {
	GroupName         string   `json:"group_name"`
	SupportedCommands []string `json:"supported_commands"`
	Stream            *Stream  `json:"stream,omitempty"`
}

// TimeProbe carries the client transmit timestamp of one sync exchange
type TimeProbe struct {
	T0Micros int64 `json:"t0_us"`
}

// TimeProbeResponse echoes the probe and adds the server timestamps
type TimeProbeResponse struct {
	T0Micros int64 `json:"t0_us"`
	S1Micros int64 `json:"s1_us"`
	S2Micros int64 `json:"s2_us"`
}

// Stream announces the active stream format and playback state
type Stream struct {
	Codec         string `json:"codec"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitDepth      int    `json:"bit_depth"`
	PlaybackState string `json:"playback_state"` // "idle", "playing", "paused", "stopped"
	GroupName     string `json:"group_name"`
	CodecHeader   string `json:"codec_header,omitempty"` // Base64-encoded
}

// StreamClear instructs the client to flush buffered audio (for seek)
type StreamClear struct{}

// StreamEnd ends the active stream
type StreamEnd struct{}

// Metadata carries track information; the timestamp anchors progress
// extrapolation in the server clock domain
type Metadata struct {
	Title       *string   `json:"title,omitempty"`
	Artist      *string   `json:"artist,omitempty"`
	Album       *string   `json:"album,omitempty"`
	AlbumArtist *string   `json:"album_artist,omitempty"`
	Year        *int      `json:"year,omitempty"`
	Track       *int      `json:"track,omitempty"`
	ArtworkURL  *string   `json:"artwork_url,omitempty"`
	Progress    *Progress `json:"progress,omitempty"`
	Repeat      *string   `json:"repeat,omitempty"` // "off", "one", "all"
	Shuffle     *bool     `json:"shuffle,omitempty"`
	ServerTS    int64     `json:"server_ts_us"`
}

// Progress reports playback position at the metadata timestamp
type Progress struct {
	PositionMs int `json:"position_ms"`
	DurationMs int `json:"duration_ms"`
	SpeedMilli int `json:"speed_milli"` // 1000 = 1.0x, 0 = paused
}

// Controller reports group controller state
type Controller struct {
	Volume            int      `json:"volume"`
	Muted             bool     `json:"muted"`
	SupportedCommands []string `json:"supported_commands"`
}

// PlayerVolume is a server-originated local volume command
type PlayerVolume struct {
	Volume int `json:"volume_0_100"`
}

// PlayerMute is a server-originated local mute command
type PlayerMute struct {
	Muted bool `json:"muted"`
}

// Cmd is an outbound transport command
type Cmd struct {
	Action string `json:"action"` // "play", "pause", "stop", "next", "previous"
}

// GroupVolume sets the group volume
type GroupVolume struct {
	Volume int `json:"volume_0_100"`
}

// GroupMute sets the group mute state
type GroupMute struct {
	Muted bool `json:"muted"`
}

// LocalVolume reports this player's local volume back to the server
type LocalVolume struct {
	Volume int `json:"volume_0_100"`
}

// Goodbye is sent before a graceful disconnect
type Goodbye struct {
	Reason string `json:"reason"` // "user_request", "shutdown", "another_server"
}
