// ABOUTME: Main player application orchestration
// ABOUTME: Wires discovery, session, clock sync, decoding, and playout
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-go/internal/artwork"
	"github.com/Sendspin/sendspin-go/internal/audio"
	"github.com/Sendspin/sendspin-go/internal/client"
	"github.com/Sendspin/sendspin-go/internal/config"
	"github.com/Sendspin/sendspin-go/internal/connect"
	"github.com/Sendspin/sendspin-go/internal/discovery"
	"github.com/Sendspin/sendspin-go/internal/player"
	"github.com/Sendspin/sendspin-go/internal/protocol"
	"github.com/Sendspin/sendspin-go/internal/state"
	"github.com/Sendspin/sendspin-go/internal/timesync"
)

// volumeEchoWindow suppresses reporting a local volume back to the
// server when it matches a server-originated change this recent
const volumeEchoWindow = 500 * time.Millisecond

// Player coordinates all components of the client runtime.
type Player struct {
	config config.Config

	store     *state.Store
	filter    *timesync.Filter
	probes    *timesync.ProbeDriver
	session   *client.Session
	buffer    *player.JitterBuffer
	scheduler *player.Scheduler
	output    *player.Output
	policy    *connect.Policy
	disc      *discovery.Manager
	art       *artwork.Downloader

	mu                 sync.Mutex
	decoder            audio.Decoder
	format             audio.Format
	probeCancel        context.CancelFunc
	lastServerVolume   int
	lastServerVolumeAt time.Time
	lastArtworkURL     string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a player from configuration.
func New(cfg config.Config) *Player {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Player{
		config: cfg,
		store:  state.NewStore(),
		filter: timesync.NewFilter(),
		output: player.NewOutput(),
		disc:   discovery.NewManager(),
		ctx:    ctx,
		cancel: cancel,
	}

	p.session = client.NewSession(client.Config{
		ClientID:   cfg.Client.ID,
		ClientName: cfg.Client.Name,
	}, p.store)

	p.buffer = player.NewJitterBuffer(p.filter, cfg.Playback.MaxQueuedChunks, cfg.Playback.PlayoutOffsetMs)
	p.scheduler = player.NewScheduler(p.filter, p.buffer, p.output, func(stats state.BufferStats) {
		p.store.Buffer.Set(stats)
	})
	p.probes = timesync.NewProbeDriver(p.filter, p.session)
	p.policy = connect.NewPolicy(p, connect.NewRecentStore(cfg.Servers.RecentPath))

	p.output.SetVolume(cfg.Playback.Volume)

	return p
}

// Store exposes the observable state for UIs and other observers.
func (p *Player) Store() *state.Store {
	return p.store
}

// Start launches all pipeline goroutines and begins server selection.
func (p *Player) Start() error {
	go p.scheduler.Run(p.ctx)
	go p.handleMediaFrames()
	go p.handleStreams()
	go p.handleStreamLifecycle()
	go p.handleProbeResponses()
	go p.handleServerVolume()

	if art, err := artwork.NewDownloader(); err != nil {
		log.Printf("Artwork cache unavailable: %v", err)
	} else {
		p.art = art
		p.store.Metadata.Subscribe(func(meta state.Metadata) {
			go p.fetchArtwork(meta)
		})
	}

	// The probe driver runs exactly while the session is connected
	p.store.Connection.Subscribe(func(cs state.ConnectionState) {
		if cs == state.Connected {
			p.startProbes()
		} else {
			p.stopProbes()
		}
	})

	if manual := p.config.Servers.Manual; manual != "" {
		server, err := parseManualServer(manual)
		if err != nil {
			return err
		}
		return p.policy.ConnectManually(server)
	}

	p.disc.Browse()
	go p.handleDiscovery()

	return nil
}

// parseManualServer turns host:port[/path] into a ServerInfo
func parseManualServer(addr string) (discovery.ServerInfo, error) {
	hostPort, path := addr, discovery.DefaultPath
	if i := strings.Index(addr, "/"); i >= 0 {
		hostPort, path = addr[:i], addr[i:]
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return discovery.ServerInfo{}, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return discovery.ServerInfo{}, fmt.Errorf("invalid server port %q: %w", portStr, err)
	}

	return discovery.ServerInfo{Name: addr, Host: host, Port: port, Path: path}, nil
}

// Connect implements the policy's connector handle.
func (p *Player) Connect(server discovery.ServerInfo) error {
	return p.session.Connect(server.URL())
}

// Disconnect implements the policy's connector handle.
func (p *Player) Disconnect() {
	p.session.Disconnect()
	p.buffer.Clear()
	p.filter.Reset()
	p.probes.Reset()
}

// ConnectManually connects to a user-chosen server.
func (p *Player) ConnectManually(server discovery.ServerInfo) error {
	return p.policy.ConnectManually(server)
}

// DisconnectManually ends the session on user request.
func (p *Player) DisconnectManually() {
	p.policy.Disconnect()
}

// handleDiscovery feeds discovery events into the connect policy.
func (p *Player) handleDiscovery() {
	for {
		select {
		case server := <-p.disc.Discovered():
			p.policy.OnDiscovered(server)
		case name := <-p.disc.Lost():
			// Reconnection is the session's job; loss is informational
			log.Printf("Server no longer advertised: %s", name)
		case <-p.ctx.Done():
			return
		}
	}
}

// startProbes begins the probe loop for the current connection.
func (p *Player) startProbes() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.probeCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.probeCancel = cancel
	p.probes.Reset()
	go p.probes.Run(ctx)
}

// stopProbes halts probing while disconnected.
func (p *Player) stopProbes() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.probeCancel != nil {
		p.probeCancel()
		p.probeCancel = nil
	}
}

// handleProbeResponses routes probe responses into the clock filter.
func (p *Player) handleProbeResponses() {
	for {
		select {
		case resp := <-p.session.ProbeResponses:
			p.probes.OnResponse(resp.T0Micros, resp.S1Micros, resp.S2Micros)
		case <-p.ctx.Done():
			return
		}
	}
}

// handleStreams reacts to stream descriptor changes.
func (p *Player) handleStreams() {
	for {
		select {
		case stream := <-p.session.Streams:
			if err := p.applyStream(stream); err != nil {
				log.Printf("Failed to apply stream %s: %v", stream.Codec, err)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// applyStream configures the decoder and sink for a stream format.
func (p *Player) applyStream(stream protocol.Stream) error {
	format := audio.Format{
		Codec:      stream.Codec,
		SampleRate: stream.SampleRate,
		Channels:   stream.Channels,
		BitDepth:   stream.BitDepth,
	}
	if stream.CodecHeader != "" {
		header, err := audio.DecodeBase64Header(stream.CodecHeader)
		if err != nil {
			return fmt.Errorf("invalid codec header: %w", err)
		}
		format.CodecHeader = header
	}

	log.Printf("Stream format: %s %dHz %dch %d-bit (%s)",
		format.Codec, format.SampleRate, format.Channels, format.BitDepth, stream.PlaybackState)

	p.mu.Lock()
	sameFormat := p.decoder != nil &&
		p.format.Codec == format.Codec &&
		p.format.SampleRate == format.SampleRate &&
		p.format.Channels == format.Channels &&
		p.format.BitDepth == format.BitDepth
	p.mu.Unlock()

	if sameFormat {
		return nil
	}

	decoder, err := audio.NewDecoder(format)
	if err != nil {
		return err
	}

	if err := p.output.Open(format.SampleRate, format.Channels, format.BitDepth); err != nil {
		decoder.Close()
		return err
	}

	p.mu.Lock()
	if p.decoder != nil {
		p.decoder.Close()
	}
	p.decoder = decoder
	p.format = format
	p.mu.Unlock()

	return nil
}

// handleStreamLifecycle flushes on clear and tears down on end.
func (p *Player) handleStreamLifecycle() {
	for {
		select {
		case <-p.session.StreamClears:
			log.Printf("Stream clear: flushing jitter buffer")
			p.buffer.Clear()

		case <-p.session.StreamEnds:
			log.Printf("Stream ended")
			p.buffer.Clear()
			p.output.Pause()
			p.mu.Lock()
			if p.decoder != nil {
				p.decoder.Close()
				p.decoder = nil
			}
			p.format = audio.Format{}
			p.mu.Unlock()

		case <-p.ctx.Done():
			return
		}
	}
}

// handleMediaFrames decodes inbound chunks into the jitter buffer.
func (p *Player) handleMediaFrames() {
	for {
		select {
		case frame := <-p.session.MediaFrames:
			p.decodeAndBuffer(frame)
		case <-p.ctx.Done():
			return
		}
	}
}

// decodeAndBuffer validates, decodes, and queues one media frame.
func (p *Player) decodeAndBuffer(frame protocol.MediaFrame) {
	p.mu.Lock()
	decoder := p.decoder
	format := p.format
	p.mu.Unlock()

	if decoder == nil {
		return
	}

	codec, known := protocol.CodecName(frame.CodecTag)
	if !known {
		log.Printf("Dropping media frame with unknown codec tag %d", frame.CodecTag)
		return
	}
	if codec != format.Codec {
		log.Printf("Dropping media frame: %v (frame %s, stream %s)",
			audio.ErrFormatMismatch, codec, format.Codec)
		return
	}

	samples, err := decoder.Decode(frame.Payload)
	if err != nil {
		log.Printf("Decode error: %v", err)
		return
	}

	p.buffer.Insert(audio.Frame{
		Timestamp: frame.Timestamp,
		Duration:  audio.DurationMicros(len(samples), format.Channels, format.SampleRate),
		Samples:   samples,
		Format:    format,
	})
}

// fetchArtwork attaches downloaded artwork bytes to the metadata snapshot.
func (p *Player) fetchArtwork(meta state.Metadata) {
	if meta.ArtworkURL == "" || meta.ArtworkBytes != nil {
		return
	}

	p.mu.Lock()
	if p.lastArtworkURL == meta.ArtworkURL {
		p.mu.Unlock()
		return
	}
	p.lastArtworkURL = meta.ArtworkURL
	p.mu.Unlock()

	data, err := p.art.Fetch(meta.ArtworkURL)
	if err != nil {
		log.Printf("Artwork fetch failed: %v", err)
		return
	}

	current := p.store.Metadata.Get()
	if current.ArtworkURL != meta.ArtworkURL {
		return // Track changed while downloading
	}
	current.ArtworkBytes = data
	p.store.Metadata.Set(current)
}

// handleServerVolume applies server-originated volume commands without
// echoing them back.
func (p *Player) handleServerVolume() {
	for {
		select {
		case vol := <-p.session.PlayerVolumes:
			p.output.SetVolume(vol.Volume)
			p.mu.Lock()
			p.lastServerVolume = vol.Volume
			p.lastServerVolumeAt = time.Now()
			p.mu.Unlock()
			p.store.LocalPlayer.Set(state.LocalPlayerState{
				Volume:     vol.Volume,
				Muted:      p.output.IsMuted(),
				FromServer: true,
			})

		case mute := <-p.session.PlayerMutes:
			p.output.SetMuted(mute.Muted)
			p.store.LocalPlayer.Set(state.LocalPlayerState{
				Volume:     p.output.Volume(),
				Muted:      mute.Muted,
				FromServer: true,
			})

		case <-p.ctx.Done():
			return
		}
	}
}

// SetVolume applies a user-initiated volume change and reports it to
// the server unless it merely echoes a recent server command.
func (p *Player) SetVolume(volume int) {
	p.output.SetVolume(volume)
	p.store.LocalPlayer.Set(state.LocalPlayerState{
		Volume: p.output.Volume(),
		Muted:  p.output.IsMuted(),
	})

	if p.serverEcho(volume) {
		return
	}

	if err := p.session.SendLocalVolume(p.output.Volume()); err != nil {
		log.Printf("Failed to report local volume: %v", err)
	}
}

// serverEcho reports whether a volume change merely repeats a recent
// server-originated command and must not be sent back.
func (p *Player) serverEcho(volume int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return volume == p.lastServerVolume && time.Since(p.lastServerVolumeAt) < volumeEchoWindow
}

// SetMuted applies a user-initiated mute change.
func (p *Player) SetMuted(muted bool) {
	p.output.SetMuted(muted)
	p.store.LocalPlayer.Set(state.LocalPlayerState{
		Volume: p.output.Volume(),
		Muted:  muted,
	})
}

// PositionMs returns the extrapolated track position at the current
// server-domain instant. Before the clock is ready it reports the last
// sampled position.
func (p *Player) PositionMs() int {
	meta := p.store.Metadata.Get()
	serverNow, ok := p.filter.ClientToServer(timesync.NowMicros())
	if !ok {
		if meta.Progress != nil {
			return meta.Progress.PositionMs
		}
		return 0
	}
	return meta.PositionAt(serverNow)
}

// Transport commands, fire and forget

func (p *Player) Play() error     { return p.session.SendCommand("play") }
func (p *Player) Pause() error    { return p.session.SendCommand("pause") }
func (p *Player) Stop() error     { return p.session.SendCommand("stop") }
func (p *Player) Next() error     { return p.session.SendCommand("next") }
func (p *Player) Previous() error { return p.session.SendCommand("previous") }

// SetGroupVolume sets the playback group's volume.
func (p *Player) SetGroupVolume(volume int) error {
	return p.session.SendGroupVolume(volume)
}

// SetGroupMute sets the playback group's mute state.
func (p *Player) SetGroupMute(muted bool) error {
	return p.session.SendGroupMute(muted)
}

// SetPlayoutOffsetMs adjusts the playout offset at runtime.
func (p *Player) SetPlayoutOffsetMs(ms int) {
	p.buffer.SetPlayoutOffsetMs(ms)
}

// Close tears down every context and releases the audio device.
func (p *Player) Close() error {
	p.cancel()
	p.disc.Stop()
	p.session.Disconnect()

	p.mu.Lock()
	if p.decoder != nil {
		p.decoder.Close()
		p.decoder = nil
	}
	p.mu.Unlock()

	return p.output.Close()
}
