// ABOUTME: Metadata progress extrapolation
// ABOUTME: Projects the sampled track position forward in server time
package state

// PositionAt extrapolates the track position to the given server-domain
// instant. The position advances at the reported playback speed from the
// moment the metadata was sampled, clamped to the track duration when one
// is known. A zero speed holds the position constant.
func (m Metadata) PositionAt(serverNowMicros int64) int {
	if m.Progress == nil {
		return 0
	}

	p := *m.Progress
	if p.SpeedMilli == 0 {
		return p.PositionMs
	}

	elapsedMs := float64(serverNowMicros-m.ServerTS) / 1000.0
	position := float64(p.PositionMs) + elapsedMs*float64(p.SpeedMilli)/1000.0

	if position < 0 {
		position = 0
	}
	if p.DurationMs > 0 && position > float64(p.DurationMs) {
		position = float64(p.DurationMs)
	}

	return int(position)
}
