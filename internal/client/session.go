// ABOUTME: WebSocket session state machine for the Sendspin protocol
// ABOUTME: Handles handshake, frame dispatch, commands, and reconnection
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-go/internal/protocol"
	"github.com/Sendspin/sendspin-go/internal/state"
	"github.com/gorilla/websocket"
)

const (
	// ChannelOpenTimeout bounds the dial plus handshake
	ChannelOpenTimeout = 10 * time.Second

	// reconnectBaseBackoff is the first retry delay; it doubles per
	// attempt up to reconnectMaxBackoff
	reconnectBaseBackoff = 1 * time.Second
	reconnectMaxBackoff  = 30 * time.Second
)

// ErrHelloRejected reports a handshake the server refused. It is fatal:
// the session will not reconnect until the caller retries.
var ErrHelloRejected = errors.New("hello rejected by server")

// Config holds session configuration
type Config struct {
	ClientID   string
	ClientName string
	Roles      []string
}

// Session owns the message channel and the connection lifecycle. Inbound
// frames are routed to typed channels that stay valid across reconnects;
// state snapshots go to the observable store.
type Session struct {
	config Config
	store  *state.Store

	// Message channels
	MediaFrames    chan protocol.MediaFrame
	ProbeResponses chan protocol.TimeProbeResponse
	Streams        chan protocol.Stream
	StreamClears   chan struct{}
	StreamEnds     chan struct{}
	PlayerVolumes  chan protocol.PlayerVolume
	PlayerMutes    chan protocol.PlayerMute

	mu         sync.Mutex
	url        string
	conn       *websocket.Conn
	writeMu    sync.Mutex
	userClosed bool
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewSession creates a session publishing into the given store.
func NewSession(config Config, store *state.Store) *Session {
	if len(config.Roles) == 0 {
		config.Roles = []string{"player"}
	}

	return &Session{
		config:         config,
		store:          store,
		MediaFrames:    make(chan protocol.MediaFrame, 100),
		ProbeResponses: make(chan protocol.TimeProbeResponse, 10),
		Streams:        make(chan protocol.Stream, 1),
		StreamClears:   make(chan struct{}, 10),
		StreamEnds:     make(chan struct{}, 1),
		PlayerVolumes:  make(chan protocol.PlayerVolume, 10),
		PlayerMutes:    make(chan protocol.PlayerMute, 10),
	}
}

// Connect dials the server at the given WebSocket URL and performs the
// hello handshake. On success the session keeps itself connected,
// reconnecting with exponential backoff after transport errors until
// Disconnect is called.
func (s *Session) Connect(url string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session already running")
	}
	s.running = true
	s.userClosed = false
	s.url = url
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if err := s.dial(); err != nil {
		s.store.Connection.Set(state.ConnError)
		s.store.Connection.Set(state.Disconnected)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	go s.run()

	return nil
}

// dial opens the channel and performs the handshake.
func (s *Session) dial() error {
	s.store.Connection.Set(state.Connecting)

	s.mu.Lock()
	url := s.url
	s.mu.Unlock()

	log.Printf("Connecting to %s", url)

	dialer := websocket.Dialer{HandshakeTimeout: ChannelOpenTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	if err := s.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	s.store.Connection.Set(state.Connected)

	return nil
}

// handshake sends hello and waits for the ack.
func (s *Session) handshake(conn *websocket.Conn) error {
	hello := protocol.Message{
		Type: protocol.TypeHello,
		Payload: protocol.Hello{
			ClientID:   s.config.ClientID,
			ClientName: s.config.ClientName,
			Roles:      s.config.Roles,
		},
	}

	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(ChannelOpenTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read hello_ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{}) // Clear deadline

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse hello_ack: %w", err)
	}
	if msg.Type != protocol.TypeHelloAck {
		return fmt.Errorf("%w: got %s", ErrHelloRejected, msg.Type)
	}

	var ack protocol.HelloAck
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		return fmt.Errorf("failed to parse hello_ack payload: %w", err)
	}

	log.Printf("Handshake complete: group=%s", ack.GroupName)

	controller := s.store.Controller.Get()
	controller.SupportedCommands = ack.SupportedCommands
	s.store.Controller.Set(controller)

	if ack.Stream != nil {
		s.routeStream(*ack.Stream)
	}

	return nil
}

// run keeps the session alive until the user disconnects.
func (s *Session) run() {
	backoff := reconnectBaseBackoff

	for {
		err := s.readLoop()

		if s.isClosed() {
			return
		}
		log.Printf("Connection lost: %v", err)
		s.store.Connection.Set(state.ConnError)

		// Reconnect with exponential backoff
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := s.dial(); err == nil {
				backoff = reconnectBaseBackoff
				break
			} else if errors.Is(err, ErrHelloRejected) {
				log.Printf("Reconnect handshake rejected, giving up: %v", err)
				s.store.Connection.Set(state.ConnError)
				s.store.Connection.Set(state.Disconnected)
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()
				return
			} else {
				log.Printf("Reconnect failed: %v", err)
				backoff *= 2
				if backoff > reconnectMaxBackoff {
					backoff = reconnectMaxBackoff
				}
			}
		}
	}
}

// readLoop reads and routes frames until the connection drops.
func (s *Session) readLoop() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleBinaryMessage(data)
		case websocket.TextMessage:
			s.handleJSONMessage(data)
		default:
			log.Printf("Unknown WebSocket message type: %d", messageType)
		}
	}
}

// handleBinaryMessage routes media chunks.
func (s *Session) handleBinaryMessage(data []byte) {
	frame, err := protocol.DecodeMediaFrame(data)
	if err != nil {
		log.Printf("Invalid media frame: %v", err)
		return
	}

	select {
	case s.MediaFrames <- frame:
	case <-s.ctx.Done():
	}
}

// inboundMessage defers payload parsing until the type is known
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handleJSONMessage routes control frames.
func (s *Session) handleJSONMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeTimeProbeResponse:
		var resp protocol.TimeProbeResponse
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.Printf("Failed to parse time_probe_response: %v", err)
			return
		}
		select {
		case s.ProbeResponses <- resp:
		case <-s.ctx.Done():
		}

	case protocol.TypeStream:
		var stream protocol.Stream
		if err := json.Unmarshal(msg.Payload, &stream); err != nil {
			log.Printf("Failed to parse stream: %v", err)
			return
		}
		s.routeStream(stream)

	case protocol.TypeStreamClear:
		select {
		case s.StreamClears <- struct{}{}:
		case <-s.ctx.Done():
		}

	case protocol.TypeStreamEnd:
		select {
		case s.StreamEnds <- struct{}{}:
		case <-s.ctx.Done():
		}

	case protocol.TypeMetadata:
		var meta protocol.Metadata
		if err := json.Unmarshal(msg.Payload, &meta); err != nil {
			log.Printf("Failed to parse metadata: %v", err)
			return
		}
		s.store.Metadata.Set(metadataSnapshot(meta))

	case protocol.TypeController:
		var ctrl protocol.Controller
		if err := json.Unmarshal(msg.Payload, &ctrl); err != nil {
			log.Printf("Failed to parse controller: %v", err)
			return
		}
		s.store.Controller.Set(state.ControllerState{
			Volume:            ctrl.Volume,
			Muted:             ctrl.Muted,
			SupportedCommands: ctrl.SupportedCommands,
		})

	case protocol.TypePlayerVolume:
		var vol protocol.PlayerVolume
		if err := json.Unmarshal(msg.Payload, &vol); err != nil {
			log.Printf("Failed to parse player_volume: %v", err)
			return
		}
		select {
		case s.PlayerVolumes <- vol:
		case <-s.ctx.Done():
		}

	case protocol.TypePlayerMute:
		var mute protocol.PlayerMute
		if err := json.Unmarshal(msg.Payload, &mute); err != nil {
			log.Printf("Failed to parse player_mute: %v", err)
			return
		}
		select {
		case s.PlayerMutes <- mute:
		case <-s.ctx.Done():
		}

	case protocol.TypePing:
		if err := s.sendJSON(protocol.Message{Type: protocol.TypePong}); err != nil {
			log.Printf("Failed to send pong: %v", err)
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// routeStream publishes the descriptor and hands the format to the pipeline.
func (s *Session) routeStream(stream protocol.Stream) {
	s.store.Stream.Set(state.StreamDescriptor{
		Codec:         stream.Codec,
		SampleRate:    stream.SampleRate,
		Channels:      stream.Channels,
		BitDepth:      stream.BitDepth,
		PlaybackState: stream.PlaybackState,
		GroupName:     stream.GroupName,
	})

	select {
	case s.Streams <- stream:
	default:
		// Only the latest descriptor matters
		select {
		case <-s.Streams:
		default:
		}
		s.Streams <- stream
	}
}

// metadataSnapshot converts a wire metadata frame to a state snapshot
func metadataSnapshot(meta protocol.Metadata) state.Metadata {
	snap := state.Metadata{
		Title:       derefString(meta.Title),
		Artist:      derefString(meta.Artist),
		Album:       derefString(meta.Album),
		AlbumArtist: derefString(meta.AlbumArtist),
		Year:        derefInt(meta.Year),
		TrackNumber: derefInt(meta.Track),
		ArtworkURL:  derefString(meta.ArtworkURL),
		RepeatMode:  derefString(meta.Repeat),
		ServerTS:    meta.ServerTS,
	}
	if meta.Shuffle != nil {
		snap.Shuffle = *meta.Shuffle
	}
	if meta.Progress != nil {
		snap.Progress = &state.TrackProgress{
			PositionMs: meta.Progress.PositionMs,
			DurationMs: meta.Progress.DurationMs,
			SpeedMilli: meta.Progress.SpeedMilli,
		}
	}
	return snap
}

// sendJSON sends one control frame; the websocket has a single writer.
func (s *Session) sendJSON(msg protocol.Message) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// SendTimeProbe sends a clock probe carrying the local transmit timestamp.
func (s *Session) SendTimeProbe(t0 int64) error {
	return s.sendJSON(protocol.Message{
		Type:    protocol.TypeTimeProbe,
		Payload: protocol.TimeProbe{T0Micros: t0},
	})
}

// SendCommand sends a transport command (play, pause, stop, next, previous).
func (s *Session) SendCommand(action string) error {
	return s.sendJSON(protocol.Message{
		Type:    protocol.TypeCmd,
		Payload: protocol.Cmd{Action: action},
	})
}

// SendGroupVolume sets the group volume.
func (s *Session) SendGroupVolume(volume int) error {
	return s.sendJSON(protocol.Message{
		Type:    protocol.TypeGroupVolume,
		Payload: protocol.GroupVolume{Volume: volume},
	})
}

// SendGroupMute sets the group mute state.
func (s *Session) SendGroupMute(muted bool) error {
	return s.sendJSON(protocol.Message{
		Type:    protocol.TypeGroupMute,
		Payload: protocol.GroupMute{Muted: muted},
	})
}

// SendLocalVolume reports this player's volume back to the server.
func (s *Session) SendLocalVolume(volume int) error {
	return s.sendJSON(protocol.Message{
		Type:    protocol.TypeLocalVolume,
		Payload: protocol.LocalVolume{Volume: volume},
	})
}

// isClosed reports whether the user requested disconnect.
func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userClosed
}

// IsConnected returns whether the session is currently connected.
func (s *Session) IsConnected() bool {
	return s.store.Connection.Get() == state.Connected
}

// Disconnect closes the channel, cancels the reader and any reconnect
// timer, and resets all observable state to its initial snapshot.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.userClosed || !s.running {
		s.mu.Unlock()
		return
	}
	s.userClosed = true
	s.running = false
	conn := s.conn
	s.conn = nil
	cancel := s.cancel
	s.mu.Unlock()

	if conn != nil {
		goodbye := protocol.Message{
			Type:    protocol.TypeGoodbye,
			Payload: protocol.Goodbye{Reason: "user_request"},
		}
		s.writeMu.Lock()
		if err := conn.WriteJSON(goodbye); err != nil {
			log.Printf("Failed to send goodbye: %v", err)
		}
		s.writeMu.Unlock()
		conn.Close()
	}

	if cancel != nil {
		cancel()
	}

	s.store.Reset()
	s.store.Connection.Set(state.Disconnected)

	log.Printf("Connection closed")
}

// derefString safely dereferences a string pointer
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// derefInt safely dereferences an int pointer
func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
