// ABOUTME: Periodic NTP-style probe driver feeding the clock filter
// ABOUTME: Tracks outstanding probes and discards stale responses
package timesync

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// ProbeInterval is the probe cadence while the filter has not converged
	ProbeInterval = 1 * time.Second

	// ConvergedProbeInterval is the relaxed cadence once converged
	ConvergedProbeInterval = 5 * time.Second

	// ProbeTimeout is how long a response stays matchable to its probe
	ProbeTimeout = 3 * time.Second
)

// ProbeSender transmits a time probe carrying the local transmit timestamp.
type ProbeSender interface {
	SendTimeProbe(t0 int64) error
}

// ProbeDriver periodically issues round-trip probes and routes the paired
// responses into the filter. Outstanding probes are keyed by their t0.
type ProbeDriver struct {
	filter *Filter
	sender ProbeSender

	mu          sync.Mutex
	outstanding map[int64]time.Time
}

// NewProbeDriver creates a probe driver feeding the given filter.
func NewProbeDriver(filter *Filter, sender ProbeSender) *ProbeDriver {
	return &ProbeDriver{
		filter:      filter,
		sender:      sender,
		outstanding: make(map[int64]time.Time),
	}
}

// Run issues probes until the context is cancelled. The cadence relaxes
// once the filter converges.
func (d *ProbeDriver) Run(ctx context.Context) {
	// First probe goes out immediately so the filter starts filling
	d.sendProbe()

	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	converged := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sendProbe()

			if c := d.filter.HasConverged(); c != converged {
				converged = c
				if converged {
					ticker.Reset(ConvergedProbeInterval)
				} else {
					ticker.Reset(ProbeInterval)
				}
			}
		}
	}
}

// sendProbe transmits one probe and registers it as outstanding.
func (d *ProbeDriver) sendProbe() {
	t0 := NowMicros()

	d.mu.Lock()
	d.outstanding[t0] = time.Now()
	d.pruneLocked()
	d.mu.Unlock()

	if err := d.sender.SendTimeProbe(t0); err != nil {
		log.Printf("Time probe send failed: %v", err)
		d.mu.Lock()
		delete(d.outstanding, t0)
		d.mu.Unlock()
	}
}

// OnResponse handles a probe response carrying the echoed t0 and the
// server receive/transmit timestamps. Stale or unmatched responses are
// discarded.
func (d *ProbeDriver) OnResponse(t0, s1, s2 int64) {
	t3 := NowMicros()

	d.mu.Lock()
	sentAt, ok := d.outstanding[t0]
	if ok {
		delete(d.outstanding, t0)
	}
	d.pruneLocked()
	d.mu.Unlock()

	if !ok {
		log.Printf("Discarding unmatched time probe response: t0=%d", t0)
		return
	}
	if time.Since(sentAt) > ProbeTimeout {
		log.Printf("Discarding stale time probe response: t0=%d", t0)
		return
	}

	d.filter.OnServerTime(t0, t3, s1, s2)
}

// Reset drops all outstanding probes, e.g. across a reconnect.
func (d *ProbeDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outstanding = make(map[int64]time.Time)
}

// pruneLocked drops outstanding probes past the response timeout.
func (d *ProbeDriver) pruneLocked() {
	now := time.Now()
	for t0, sentAt := range d.outstanding {
		if now.Sub(sentAt) > ProbeTimeout {
			delete(d.outstanding, t0)
		}
	}
}
