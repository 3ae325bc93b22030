// ABOUTME: Auto-connect policy choosing a server from discovery
// ABOUTME: Distinguishes automatic first-connect from manual selection
package connect

import (
	"log"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-go/internal/discovery"
)

// Mode is the connection selection mode
type Mode int

const (
	// Auto connects to the first discovered server, once
	Auto Mode = iota
	// Manual means the user has chosen; discovery no longer connects
	Manual
)

// Connector drives the session on behalf of the policy. The policy holds
// this one-directional handle; it never observes the session directly.
type Connector interface {
	Connect(server discovery.ServerInfo) error
	Disconnect()
}

// Policy decides which server the client connects to. In Auto mode the
// first discovered server wins, exactly once; any manual action switches
// to Manual permanently. Reconnection after a server loss is the
// session's job, never the policy's.
type Policy struct {
	mu               sync.Mutex
	mode             Mode
	hasAutoConnected bool
	connector        Connector
	recent           *RecentStore
}

// NewPolicy creates a policy in Auto mode.
func NewPolicy(connector Connector, recent *RecentStore) *Policy {
	return &Policy{
		connector: connector,
		recent:    recent,
	}
}

// OnDiscovered handles a newly discovered server.
func (p *Policy) OnDiscovered(server discovery.ServerInfo) {
	p.mu.Lock()
	if p.mode != Auto || p.hasAutoConnected {
		p.mu.Unlock()
		return
	}
	p.hasAutoConnected = true
	p.mu.Unlock()

	log.Printf("Auto-connecting to discovered server %s", server.Name)

	if err := p.connector.Connect(server); err != nil {
		log.Printf("Auto-connect failed: %v", err)
		return
	}
	p.remember(server)
}

// ConnectManually connects to a user-chosen server and switches to
// Manual mode.
func (p *Policy) ConnectManually(server discovery.ServerInfo) error {
	p.mu.Lock()
	p.mode = Manual
	p.mu.Unlock()

	p.connector.Disconnect()

	if err := p.connector.Connect(server); err != nil {
		return err
	}
	p.remember(server)
	return nil
}

// Disconnect ends the session and switches to Manual mode so discovery
// does not immediately reconnect.
func (p *Policy) Disconnect() {
	p.mu.Lock()
	p.mode = Manual
	p.mu.Unlock()

	p.connector.Disconnect()
}

// Mode returns the current selection mode.
func (p *Policy) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// remember records the server in the recent list
func (p *Policy) remember(server discovery.ServerInfo) {
	if p.recent == nil {
		return
	}
	if err := p.recent.Add(server, time.Now()); err != nil {
		log.Printf("Failed to record recent server: %v", err)
	}
}
