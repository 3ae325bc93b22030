// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, file overrides, and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Client.ID != "android-player-1" {
		t.Errorf("unexpected default client id: %s", cfg.Client.ID)
	}
	if cfg.Client.Name != "Android Player" {
		t.Errorf("unexpected default client name: %s", cfg.Client.Name)
	}
	if cfg.Playback.PlayoutOffsetMs != -300 {
		t.Errorf("expected default playout offset -300, got %d", cfg.Playback.PlayoutOffsetMs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Client.ID != "android-player-1" {
		t.Errorf("expected defaults, got %s", cfg.Client.ID)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
client:
  id: kitchen-player
  name: Kitchen
playback:
  playout_offset_ms: 150
servers:
  manual: 10.0.0.5:8927
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Client.ID != "kitchen-player" || cfg.Client.Name != "Kitchen" {
		t.Errorf("expected file overrides, got %+v", cfg.Client)
	}
	if cfg.Playback.PlayoutOffsetMs != 150 {
		t.Errorf("expected playout offset 150, got %d", cfg.Playback.PlayoutOffsetMs)
	}
	if cfg.Servers.Manual != "10.0.0.5:8927" {
		t.Errorf("expected manual server, got %s", cfg.Servers.Manual)
	}
	// Untouched keys keep defaults
	if cfg.Playback.Volume != 100 {
		t.Errorf("expected default volume kept, got %d", cfg.Playback.Volume)
	}
}

func TestLoadRejectsBadOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("playback:\n  playout_offset_ms: 5000\n"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for out-of-range offset")
	}
}
