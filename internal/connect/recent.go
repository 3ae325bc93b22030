// ABOUTME: Persistent list of recently connected servers
// ABOUTME: Bounded JSON file, newest first, deduplicated by address
package connect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-go/internal/discovery"
)

// maxRecentServers bounds the stored list
const maxRecentServers = 10

// RecentServer is one remembered server
type RecentServer struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"` // host:port
	Path        string    `json:"path"`
	ConnectedAt time.Time `json:"connected_at"`
}

// RecentStore persists the recent-servers list to a JSON file. It is
// created once per process and shared by reference.
type RecentStore struct {
	mu   sync.Mutex
	path string
}

// NewRecentStore creates a store backed by the given file path.
func NewRecentStore(path string) *RecentStore {
	return &RecentStore{path: path}
}

// Load returns the remembered servers, newest first. A missing file is
// an empty list.
func (r *RecentStore) Load() ([]RecentServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *RecentStore) loadLocked() ([]RecentServer, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recent servers: %w", err)
	}

	var servers []RecentServer
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("failed to parse recent servers: %w", err)
	}
	return servers, nil
}

// Add records a connection, moving the server to the front and trimming
// the list to its bound.
func (r *RecentStore) Add(server discovery.ServerInfo, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers, err := r.loadLocked()
	if err != nil {
		// A corrupt file is replaced rather than kept broken
		servers = nil
	}

	addr := server.Address()
	out := []RecentServer{{
		Name:        server.Name,
		Address:     addr,
		Path:        server.Path,
		ConnectedAt: at,
	}}
	for _, s := range servers {
		if s.Address == addr {
			continue
		}
		out = append(out, s)
		if len(out) == maxRecentServers {
			break
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode recent servers: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create recent servers dir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write recent servers: %w", err)
	}
	return nil
}
