// Package engine provides the simulated engine buffer that drives the
// tempo core: a callback clock, a playhead advanced by the computed rate,
// seek and phase-seek requests, and the peer-query surface other decks
// sync against. The real audio I/O engine is out of scope; this one
// produces positions and rates, not samples.
package engine

import "time"

const (
	DefaultSampleRate = 48000
	Channels          = 2
	// One simulated audio callback. Real engines run 256-1024 frame
	// buffers; 5ms keeps the control loop granular enough for the sync
	// adjuster to settle quickly.
	CallbackDuration = 5 * time.Millisecond
)

// Stats is one callback's observable outcome, fanned out to subscribers.
type Stats struct {
	Group        string
	Position     float64 // stereo samples
	BeatDistance float64
	Rate         float64
	EngineBpm    float64
}
