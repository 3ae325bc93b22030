// ABOUTME: mDNS discovery of Sendspin servers
// ABOUTME: Browses _sendspin-server._tcp and tracks appearance and loss
package discovery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the Sendspin server mDNS service type
	ServiceType = "_sendspin-server._tcp"

	// DefaultPath is used when the TXT record carries no path
	DefaultPath = "/sendspin"

	// browseTimeout is the per-round mDNS query window
	browseTimeout = 3 * time.Second

	// lostAfter is how long a server may go unseen before it is reported lost
	lostAfter = 15 * time.Second
)

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL builds the WebSocket URL for this server.
func (s ServerInfo) URL() string {
	return fmt.Sprintf("ws://%s:%d%s", s.Host, s.Port, s.Path)
}

// Address returns host:port.
func (s ServerInfo) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Manager browses for Sendspin servers and emits discovery events.
type Manager struct {
	ctx        context.Context
	cancel     context.CancelFunc
	discovered chan ServerInfo
	lost       chan string
	lastSeen   map[string]time.Time
}

// NewManager creates a discovery manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		ctx:        ctx,
		cancel:     cancel,
		discovered: make(chan ServerInfo, 10),
		lost:       make(chan string, 10),
		lastSeen:   make(map[string]time.Time),
	}
}

// Browse starts browsing in the background.
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop continuously queries for servers
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}

				server := ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
					Path: pathFromTXT(entry.InfoFields),
				}

				if _, known := m.lastSeen[server.Name]; !known {
					log.Printf("Discovered server: %s at %s%s", server.Name, server.Address(), server.Path)

					select {
					case m.discovered <- server:
					case <-m.ctx.Done():
						return
					}
				}
				m.lastSeen[server.Name] = time.Now()
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: browseTimeout,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)

		m.reportLost()
	}
}

// reportLost emits loss events for servers unseen past the threshold
func (m *Manager) reportLost() {
	now := time.Now()
	for name, seen := range m.lastSeen {
		if now.Sub(seen) > lostAfter {
			delete(m.lastSeen, name)
			log.Printf("Lost server: %s", name)

			select {
			case m.lost <- name:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// pathFromTXT extracts the WebSocket path from TXT records
func pathFromTXT(fields []string) string {
	for _, field := range fields {
		if strings.HasPrefix(field, "path=") {
			if p := strings.TrimPrefix(field, "path="); p != "" {
				return p
			}
		}
	}
	return DefaultPath
}

// Discovered returns the channel of newly discovered servers.
func (m *Manager) Discovered() <-chan ServerInfo {
	return m.discovered
}

// Lost returns the channel of lost server names.
func (m *Manager) Lost() <-chan string {
	return m.lost
}

// Stop stops the discovery manager.
func (m *Manager) Stop() {
	m.cancel()
}
