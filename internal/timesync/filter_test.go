// ABOUTME: Tests for the Kalman clock filter
// ABOUTME: Covers bootstrap, convergence, conversions, and idempotence
package timesync

import (
	"math"
	"testing"
)

func TestFirstProbeBootstrapsOffset(t *testing.T) {
	f := NewFilter()

	// rtt=200µs, server processing=50µs
	f.OnServerTime(0, 200, 10100, 10150)

	if f.MeasurementCount() != 1 {
		t.Fatalf("expected 1 measurement, got %d", f.MeasurementCount())
	}

	// measurement = (s1 + proc/2) - (t0 + rtt/2) = 10125 - 100 = 10025
	offset := f.EstimatedOffsetMicros()
	if math.Abs(offset-10025) > 1 {
		t.Errorf("expected offset ~10025µs, got %.1f", offset)
	}

	if f.EstimatedDriftPPM() != 0 {
		t.Errorf("expected zero drift after first probe, got %f", f.EstimatedDriftPPM())
	}
}

func TestSecondProbeInitializesDrift(t *testing.T) {
	f := NewFilter()

	f.OnServerTime(0, 200, 10100, 10150)
	f.OnServerTime(1_000_000, 1_000_240, 11_100_120, 11_100_170)

	if f.MeasurementCount() != 2 {
		t.Fatalf("expected 2 measurements, got %d", f.MeasurementCount())
	}

	// Second measurement = (11100120 + 25) - (1000000 + 120) = 10100025
	offset := f.EstimatedOffsetMicros()
	if math.Abs(offset-10_100_025) > 1 {
		t.Errorf("expected offset within 1µs of 10100025, got %.1f", offset)
	}

	if f.EstimatedDriftPPM() <= 0 {
		t.Errorf("expected positive drift, got %f ppm", f.EstimatedDriftPPM())
	}

	if !f.IsReady() {
		t.Error("expected filter ready after two measurements")
	}
}

func TestConvergenceAfterTwelveProbes(t *testing.T) {
	f := NewFilter()

	// True offset 10ms, probes 1s apart, RTT in [100, 300]µs, ±50µs noise
	for i := 0; i < 12; i++ {
		t0 := int64(i) * 1_000_000
		rtt := int64(100 + (i*37)%201)
		noise := int64((i%5)-2) * 25

		s1 := t0 + rtt/2 + 10_000 + noise
		s2 := s1
		t3 := t0 + rtt

		f.OnServerTime(t0, t3, s1, s2)
	}

	if !f.HasConverged() {
		t.Fatalf("expected convergence after 12 probes, error=%.1fµs count=%d",
			f.EstimatedErrorMicros(), f.MeasurementCount())
	}

	offset := f.EstimatedOffsetMicros()
	if math.Abs(offset-10_000) > 300 {
		t.Errorf("expected offset within 300µs of 10000, got %.1f", offset)
	}
}

func TestNotConvergedBeforeTwelveProbes(t *testing.T) {
	f := NewFilter()

	for i := 0; i < 11; i++ {
		t0 := int64(i) * 1_000_000
		f.OnServerTime(t0, t0+200, t0+100+10_000, t0+100+10_000)
	}

	if f.HasConverged() {
		t.Error("expected no convergence before 12 measurements")
	}
}

func TestConversionRoundTrip(t *testing.T) {
	f := NewFilter()

	// Two probes with a mild drift between them
	f.OnServerTime(0, 200, 10_100, 10_100)
	f.OnServerTime(1_000_000, 1_000_200, 1_010_150, 1_010_150)

	for _, tLocal := range []int64{0, 1_000_000, 2_500_000, 10_000_000} {
		tServer, ok := f.ClientToServer(tLocal)
		if !ok {
			t.Fatalf("ClientToServer not ready at t=%d", tLocal)
		}
		back, ok := f.ServerToClient(tServer)
		if !ok {
			t.Fatalf("ServerToClient not ready at t=%d", tLocal)
		}
		if diff := back - tLocal; diff > 2 || diff < -2 {
			t.Errorf("round trip off by %dµs at t=%d", diff, tLocal)
		}
	}
}

func TestConversionUnreadyBeforeTwoMeasurements(t *testing.T) {
	f := NewFilter()

	if _, ok := f.ClientToServer(1000); ok {
		t.Error("expected ClientToServer unready with no measurements")
	}

	f.OnServerTime(0, 200, 10_100, 10_150)

	if _, ok := f.ClientToServer(1000); ok {
		t.Error("expected ClientToServer unready with one measurement")
	}
	if _, ok := f.ServerToClient(1000); ok {
		t.Error("expected ServerToClient unready with one measurement")
	}
}

func TestUpdateIdempotentPerTimestamp(t *testing.T) {
	f := NewFilter()

	f.Update(10_000, 150, 1000)
	f.Update(10_500, 150, 2000)

	offset := f.EstimatedOffsetMicros()
	drift := f.EstimatedDriftPPM()
	count := f.MeasurementCount()

	// Re-applying the last measurement must not change anything
	f.Update(10_500, 150, 2000)

	if f.EstimatedOffsetMicros() != offset {
		t.Error("offset changed on repeated update")
	}
	if f.EstimatedDriftPPM() != drift {
		t.Error("drift changed on repeated update")
	}
	if f.MeasurementCount() != count {
		t.Error("count changed on repeated update")
	}
}

func TestReversedTimestampsClamped(t *testing.T) {
	f := NewFilter()

	// t3 < t0 and s2 < s1: both deltas clamp to zero, no panic
	f.OnServerTime(1000, 500, 2000, 1500)

	if f.MeasurementCount() != 1 {
		t.Errorf("expected measurement applied, got count %d", f.MeasurementCount())
	}
}

func TestCovarianceFiniteAfterTwoMeasurements(t *testing.T) {
	f := NewFilter()

	f.OnServerTime(0, 200, 10_100, 10_150)
	f.OnServerTime(1_000_000, 1_000_200, 1_010_150, 1_010_150)

	if math.IsInf(f.EstimatedErrorMicros(), 0) || math.IsNaN(f.EstimatedErrorMicros()) {
		t.Errorf("expected finite error estimate, got %f", f.EstimatedErrorMicros())
	}
	if f.EstimatedErrorMicros() < 0 {
		t.Errorf("expected non-negative error estimate, got %f", f.EstimatedErrorMicros())
	}
}

func TestResetClearsConvergence(t *testing.T) {
	f := NewFilter()

	for i := 0; i < 15; i++ {
		t0 := int64(i) * 1_000_000
		f.OnServerTime(t0, t0+200, t0+100+10_000, t0+100+10_000)
	}

	if !f.HasConverged() {
		t.Fatal("expected convergence before reset")
	}

	f.Reset()

	if f.HasConverged() {
		t.Error("expected convergence lost after reset")
	}
	if f.IsReady() {
		t.Error("expected filter not ready after reset")
	}
}
