// Package bpm implements the per-deck beat synchronization and tempo
// control core: playhead tracking against the beat grid, the proportional
// control loop that phase-locks a follower deck to its sync master, tap
// tempo, and the grid nudge / translate operations.
//
// The package is split along the audio/control thread boundary. The
// callback entry points (Process, UpdateLocalBpm, UpdateBeatDistance,
// CalcSyncedRate, NearestPositionInPhase) never allocate, lock, or fail:
// every degraded state collapses to "no adjustment". Everything else runs
// on control threads and communicates through the deck's observable
// values.
package bpm

import "time"

// SyncMode is the deck's role in the sync network, decided externally.
type SyncMode int

const (
	SyncNone SyncMode = iota
	SyncFollower
	SyncMaster
)

const (
	// Slowest tappable tempo; taps further apart than this are treated
	// as a fresh start.
	minTapBpm       = 30
	maxTapInterval  = time.Minute / minTapBpm
	tapFilterLength = 5

	// Local BPM is measured this many beats forward and backward around
	// the playhead, so the window is twice this.
	localBpmSpan = 4

	// Sync control loop. Errors below the threshold are left alone;
	// errors above the train-wreck threshold are too large to know the
	// direction, so the response is a fixed-magnitude catch-up.
	errorThreshold           = 0.01
	trainWreckThreshold      = 0.2
	syncAdjustmentCap        = 0.05
	syncDeltaCap             = 0.02
	syncAdjustmentProportion = 0.7

	// Grid edit steps.
	bpmAdjustStep    = 0.01
	translateStepSec = 0.01
	minGridBpm       = 10.0
	maxGridBpm       = 200.0
)

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
