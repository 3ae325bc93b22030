// ABOUTME: Kalman-filtered clock synchronization against the server clock
// ABOUTME: Tracks offset and drift with a 2D state and adaptive forgetting
package timesync

import (
	"math"
	"sync"
	"time"
)

// Filter parameters and convergence thresholds
const (
	// DefaultProcessStdDev is the process noise applied to the offset state
	DefaultProcessStdDev = 0.01

	// DefaultForgetFactor inflates covariance when residuals run large
	DefaultForgetFactor = 1.001

	// MinConvergedMeasurements is how many measurements are needed before
	// the filter may report convergence
	MinConvergedMeasurements = 12

	// ConvergedErrorMicros is the offset std-dev ceiling for convergence
	ConvergedErrorMicros = 5000.0

	// minMeasurementError floors the per-probe error estimate
	minMeasurementError = 100.0

	// forgettingCountThreshold is the measurement count at which adaptive
	// forgetting activates; count stops incrementing once it is reached
	forgettingCountThreshold = 100
)

// Filter estimates the server-client clock offset and its drift rate from
// NTP-style probe measurements. The state vector is [offset, drift] with a
// full 2x2 covariance. All reads and writes take the mutex; audio-side
// readers see a consistent snapshot.
type Filter struct {
	mu sync.RWMutex

	offset     float64       // server_time - client_time at lastUpdate (µs)
	drift      float64       // offset change rate (µs per µs)
	cov        [2][2]float64 // covariance over (offset, drift)
	count      int           // applied measurements, capped at forgetting threshold
	lastUpdate int64         // local µs of the last applied measurement
	lastRTT    int64         // most recent probe round-trip (µs)

	processStdDev float64
	forgetFactor  float64
}

// NewFilter creates a clock filter with default noise parameters.
func NewFilter() *Filter {
	f := &Filter{
		processStdDev: DefaultProcessStdDev,
		forgetFactor:  DefaultForgetFactor,
	}
	f.reset()
	return f
}

func (f *Filter) reset() {
	f.offset = 0
	f.drift = 0
	f.cov = [2][2]float64{{math.Inf(1), 0}, {0, 0}}
	f.count = 0
	f.lastUpdate = 0
	f.lastRTT = 0
}

// Reset clears all filter state. Convergence is lost until enough new
// measurements arrive.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

// OnServerTime ingests one NTP-style probe exchange.
// t0 = local transmit, s1 = server receive, s2 = server transmit,
// t3 = local receive, all in microseconds.
func (f *Filter) OnServerTime(t0, t3, s1, s2 int64) {
	rtt := t3 - t0
	if rtt < 0 {
		rtt = 0
	}
	serverProc := s2 - s1
	if serverProc < 0 {
		serverProc = 0
	}
	oneWay := float64(rtt-serverProc) / 2
	if oneWay < 0 {
		oneWay = 0
	}

	f.mu.Lock()
	f.lastRTT = rtt
	f.mu.Unlock()

	measurement := (float64(s1) + float64(serverProc)/2) - (float64(t0) + float64(rtt)/2)
	maxError := oneWay
	if maxError < minMeasurementError {
		maxError = minMeasurementError
	}

	f.Update(measurement, maxError, t3)
}

// Update applies one offset measurement taken at timeAdded (local µs) with
// the given error bound. A repeated timestamp is a no-op, which makes the
// operation idempotent per probe.
func (f *Filter) Update(measurement, maxError float64, timeAdded int64) {
	if maxError < 0 {
		maxError = 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Repeated or backwards timestamps are discarded; lastUpdate only
	// moves forward
	if f.count > 0 && timeAdded <= f.lastUpdate {
		return
	}

	r := maxError * maxError

	switch {
	case f.count == 0:
		f.offset = measurement
		f.drift = 0
		f.cov[0][0] = r
		f.count = 1

	case f.count == 1:
		dt := float64(timeAdded - f.lastUpdate)
		f.drift = (measurement - f.offset) / dt
		f.cov[1][1] = (f.cov[0][0] + r) / dt
		f.offset = measurement
		f.cov[0][0] = r
		f.count = 2

	default:
		dt := float64(timeAdded - f.lastUpdate)

		// Predict: x = F x, P = F P Ft + Q with process noise on offset only
		predOffset := f.offset + f.drift*dt
		p00 := f.cov[0][0] + dt*(f.cov[0][1]+f.cov[1][0]) + dt*dt*f.cov[1][1] + dt*f.processStdDev*f.processStdDev
		p01 := f.cov[0][1] + dt*f.cov[1][1]
		p10 := f.cov[1][0] + dt*f.cov[1][1]
		p11 := f.cov[1][1]

		residual := measurement - predOffset

		// Large residuals after settling mean the model is too confident;
		// inflate the predicted covariance before the update
		if f.count >= forgettingCountThreshold && math.Abs(residual) > 0.75*maxError {
			ff := f.forgetFactor * f.forgetFactor
			p00 *= ff
			p01 *= ff
			p10 *= ff
			p11 *= ff
		}

		s := p00 + r
		k0 := p00 / s
		k1 := p10 / s

		f.offset = predOffset + k0*residual
		f.drift = f.drift + k1*residual
		f.cov[0][0] = (1 - k0) * p00
		f.cov[0][1] = (1 - k0) * p01
		f.cov[1][0] = p10 - k1*p00
		f.cov[1][1] = p11 - k1*p01

		if f.count < forgettingCountThreshold {
			f.count++
		}
	}

	f.lastUpdate = timeAdded
}

// IsReady reports whether timestamp conversions are meaningful.
func (f *Filter) IsReady() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isReady()
}

func (f *Filter) isReady() bool {
	return f.count >= 2 && !math.IsInf(f.cov[0][0], 0) && !math.IsNaN(f.cov[0][0])
}

// HasConverged reports whether playout may safely begin.
func (f *Filter) HasConverged() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count >= MinConvergedMeasurements && math.Sqrt(f.cov[0][0]) < ConvergedErrorMicros
}

// ClientToServer converts a local timestamp to the server clock domain.
// The second return is false until the filter is ready.
func (f *Filter) ClientToServer(tLocal int64) (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.isReady() {
		return 0, false
	}

	t := float64(tLocal)
	server := t + f.offset + f.drift*(t-float64(f.lastUpdate))
	return int64(math.Round(server)), true
}

// ServerToClient converts a server timestamp to the local clock domain.
// The second return is false until the filter is ready.
func (f *Filter) ServerToClient(tServer int64) (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.isReady() {
		return 0, false
	}

	client := (float64(tServer) - f.offset + f.drift*float64(f.lastUpdate)) / (1 + f.drift)
	return int64(math.Round(client)), true
}

// EstimatedErrorMicros returns the offset standard deviation.
func (f *Filter) EstimatedErrorMicros() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return math.Sqrt(f.cov[0][0])
}

// EstimatedOffsetMicros returns the current offset estimate.
func (f *Filter) EstimatedOffsetMicros() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.offset
}

// EstimatedDriftPPM returns the drift estimate in parts per million.
func (f *Filter) EstimatedDriftPPM() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.drift * 1e6
}

// LastRoundTripMicros returns the most recent probe round-trip time.
func (f *Filter) LastRoundTripMicros() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastRTT
}

// MeasurementCount returns how many measurements have been applied; the
// count stops at the forgetting threshold (100).
func (f *Filter) MeasurementCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// processStart anchors the monotonic local clock
var processStart = time.Now()

// NowMicros returns the monotonic local clock in microseconds. All local
// timestamps handed to the filter come from here, never from wall time.
func NowMicros() int64 {
	return time.Since(processStart).Microseconds()
}
