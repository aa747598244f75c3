package bpm

import (
	"math"

	"github.com/satindergrewal/beatlock/internal/beats"
	"github.com/satindergrewal/beatlock/internal/control"
)

// BeatContext derives the beat length and the fractional beat position
// from pre-fetched enclosing beats. prev and next use the engine's
// AbsentBeat sentinel. Grid queries carry a boundary epsilon, so the raw
// fraction can land just outside [0, 1); it is normalized here.
func BeatContext(pos, prev, next float64) (beatLength, fraction float64, ok bool) {
	if prev == control.AbsentBeat || next == control.AbsentBeat {
		return 0, 0, false
	}
	beatLength = next - prev
	if beatLength == 0 {
		return 0, 0, true
	}
	fraction = (pos - prev) / beatLength
	if fraction < 0 {
		fraction++
	}
	if fraction >= 1 {
		fraction--
	}
	return beatLength, fraction, true
}

// GridBeatContext looks up the enclosing beats on g and derives the beat
// context at pos.
func GridBeatContext(g beats.Grid, pos float64) (prev, next, beatLength, fraction float64, ok bool) {
	if g == nil {
		return 0, 0, 0, 0, false
	}
	prev, next, ok = g.PrevNextBeats(pos)
	if !ok {
		return 0, 0, 0, 0, false
	}
	beatLength, fraction, ok = BeatContext(pos, prev, next)
	return prev, next, beatLength, fraction, ok
}

// ShortestPercentageChange returns the signed shortest distance on the
// unit circle from current to target, in (-1, 1]. When the forward and
// backward distances tie, forward wins.
func ShortestPercentageChange(current, target float64) float64 {
	if current == target {
		return 0
	}
	if current < target {
		// Invariant: forward - backward == 1.
		forward := target - current
		backward := target - current - 1
		if math.Abs(forward) <= math.Abs(backward) {
			return forward
		}
		return backward
	}
	forward := 1 - current + target
	backward := target - current
	if math.Abs(forward) <= math.Abs(backward) {
		return forward
	}
	return backward
}
