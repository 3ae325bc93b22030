// ABOUTME: Entry point for the Sendspin player
// ABOUTME: Parses CLI flags, loads config, and runs the player with TUI
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/Sendspin/sendspin-go/internal/app"
	"github.com/Sendspin/sendspin-go/internal/config"
	"github.com/Sendspin/sendspin-go/internal/state"
	"github.com/Sendspin/sendspin-go/internal/ui"
	"github.com/Sendspin/sendspin-go/internal/version"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

var (
	configPath    = flag.String("config", "", "Config file path (YAML)")
	serverAddr    = flag.String("server", "", "Manual server address host:port[/path] (skip mDNS)")
	name          = flag.String("name", "", "Player friendly name")
	playoutOffset = flag.Int("playout-offset-ms", 0, "Playout offset in ms, negative plays earlier (overrides config)")
	logFile       = flag.String("log-file", "", "Log file path")
	noTUI         = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// Flags override the config file
	if *serverAddr != "" {
		cfg.Servers.Manual = *serverAddr
	}
	if *name != "" {
		cfg.Client.Name = *name
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "playout-offset-ms" {
			cfg.Playback.PlayoutOffsetMs = *playoutOffset
		}
	})
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if cfg.Client.ID == "" {
		cfg.Client.ID = uuid.New().String()
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s %s (%s)", version.Product, version.Version, cfg.Client.Name)

	player := app.New(cfg)

	var tuiProg *tea.Program
	var controls *ui.Controls

	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go tuiProg.Run()

		wireTUI(player, tuiProg)
		go handleControls(player, controls)
	}

	if err := player.Start(); err != nil {
		log.Fatalf("Failed to start player: %v", err)
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if controls != nil {
		select {
		case <-controls.Quit:
			log.Printf("Quit requested from TUI")
		case <-sigChan:
			log.Printf("Shutdown signal received")
		}
	} else {
		<-sigChan
		log.Printf("Shutdown signal received")
	}

	if err := player.Close(); err != nil {
		log.Printf("Error closing player: %v", err)
	}

	if tuiProg != nil {
		tuiProg.Quit()
	}

	log.Printf("Player stopped")
}

// wireTUI forwards state snapshots into the TUI
func wireTUI(player *app.Player, prog *tea.Program) {
	store := player.Store()

	store.Connection.Subscribe(func(cs state.ConnectionState) {
		c := cs
		prog.Send(ui.StatusMsg{Connection: &c})
	})
	store.Stream.Subscribe(func(desc state.StreamDescriptor) {
		d := desc
		prog.Send(ui.StatusMsg{Stream: &d, ServerName: desc.GroupName})
	})
	store.Metadata.Subscribe(func(meta state.Metadata) {
		m := meta
		prog.Send(ui.StatusMsg{Metadata: &m})
	})
	store.Buffer.Subscribe(func(stats state.BufferStats) {
		b := stats
		prog.Send(ui.StatusMsg{Buffer: &b})
	})
	store.LocalPlayer.Subscribe(func(lp state.LocalPlayerState) {
		v, m := lp.Volume, lp.Muted
		prog.Send(ui.StatusMsg{Volume: &v, Muted: &m})
	})

	go statsUpdateLoop(player, prog)
}

// statsUpdateLoop periodically pushes the extrapolated track position and
// process runtime stats into the TUI
func statsUpdateLoop(player *app.Player, prog *tea.Program) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	// Use a slower ticker for expensive runtime stats to avoid GC pauses
	runtimeStatsTicker := time.NewTicker(2 * time.Second)
	defer runtimeStatsTicker.Stop()

	var lastGoroutines int
	var lastMemAlloc, lastMemSys uint64

	for {
		select {
		case <-runtimeStatsTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			lastGoroutines = runtime.NumGoroutine()
			lastMemAlloc = m.Alloc
			lastMemSys = m.Sys

		case <-ticker.C:
			prog.Send(ui.StatusMsg{
				PositionMs: player.PositionMs(),
				Goroutines: lastGoroutines,
				MemAlloc:   lastMemAlloc,
				MemSys:     lastMemSys,
			})
		}
	}
}

// handleControls applies TUI actions to the player
func handleControls(player *app.Player, controls *ui.Controls) {
	for {
		select {
		case vol := <-controls.Volume:
			player.SetVolume(vol.Volume)
			player.SetMuted(vol.Muted)

		case cmd := <-controls.Commands:
			var err error
			switch cmd.Action {
			case "play":
				err = player.Play()
			case "pause":
				err = player.Pause()
			case "next":
				err = player.Next()
			case "previous":
				err = player.Previous()
			default:
				err = fmt.Errorf("unknown action %q", cmd.Action)
			}
			if err != nil {
				log.Printf("Command %s failed: %v", cmd.Action, err)
			}

		case <-controls.Quit:
			return
		}
	}
}
