// ABOUTME: Player configuration loaded from YAML with defaults
// ABOUTME: Client identity, playback tuning, and server selection
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ClientConfig identifies this player to servers
type ClientConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// PlaybackConfig tunes the playout pipeline
type PlaybackConfig struct {
	PlayoutOffsetMs int `yaml:"playout_offset_ms"` // [-1000, 1000]
	MaxQueuedChunks int `yaml:"max_queued_chunks"`
	Volume          int `yaml:"volume"` // 0-100
}

// ServersConfig controls server selection
type ServersConfig struct {
	Manual     string `yaml:"manual"` // host:port[/path]; empty enables discovery
	RecentPath string `yaml:"recent_path"`
}

// Config is the full player configuration
type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Playback PlaybackConfig `yaml:"playback"`
	Servers  ServersConfig  `yaml:"servers"`
	LogFile  string         `yaml:"log_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return Config{
		Client: ClientConfig{
			ID:   "android-player-1",
			Name: "Android Player",
		},
		Playback: PlaybackConfig{
			PlayoutOffsetMs: -300,
			MaxQueuedChunks: 200,
			Volume:          100,
		},
		Servers: ServersConfig{
			RecentPath: filepath.Join(home, ".sendspin", "recent-servers.json"),
		},
		LogFile: "sendspin-player.log",
	}
}

// Load reads configuration from path, layered over the defaults. A
// missing file returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Playback.PlayoutOffsetMs < -1000 || c.Playback.PlayoutOffsetMs > 1000 {
		return fmt.Errorf("playout_offset_ms must be in [-1000, 1000], got %d", c.Playback.PlayoutOffsetMs)
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 100 {
		return fmt.Errorf("volume must be in [0, 100], got %d", c.Playback.Volume)
	}
	if c.Playback.MaxQueuedChunks < 0 {
		return fmt.Errorf("max_queued_chunks must be non-negative, got %d", c.Playback.MaxQueuedChunks)
	}
	if c.Client.ID == "" {
		return fmt.Errorf("client id must not be empty")
	}
	return nil
}
