package bpm

// NearestPositionInPhase computes the position to seek to so this deck's
// beat fraction matches the reference. With respectLoops, a target past
// the end of an active loop wraps back inside it and re-aligns once.
func (tc *TempoControl) NearestPositionInPhase(thisPosition float64, respectLoops, playing bool) float64 {
	g := tc.beats()
	// Without a grid there is no phase; the master is in sync by
	// definition.
	if g == nil || tc.syncMode() == SyncMaster {
		return thisPosition
	}

	thisPrevBeat := tc.co.PrevBeat.Get()
	thisNextBeat := tc.co.NextBeat.Get()
	var thisBeatLength float64
	if thisPosition > thisNextBeat || thisPosition < thisPrevBeat {
		// The mirrors can lag a seek; look the beats up fresh.
		prev, next, length, _, ok := GridBeatContext(g, thisPosition)
		if !ok {
			return thisPosition
		}
		thisPrevBeat, thisNextBeat, thisBeatLength = prev, next, length
	} else {
		length, _, ok := BeatContext(thisPosition, thisPrevBeat, thisNextBeat)
		if !ok {
			return thisPosition
		}
		thisBeatLength = length
	}

	var otherFraction float64
	if tc.syncMode() == SyncFollower {
		// The sync manager already pushes the master's fraction.
		otherFraction = tc.targetBeatDistance.Get()
	} else {
		if tc.pickTarget == nil {
			return thisPosition
		}
		other := tc.pickTarget()
		if other == nil {
			return thisPosition
		}
		// A rolling deck only phase-matches a target that is rolling
		// too.
		if playing && other.Speed() == 0 {
			return thisPosition
		}
		otherGrid := other.Beats()
		if otherGrid == nil {
			return thisPosition
		}
		otherPosition := other.TrackSamples() * other.PlayPosition()
		_, _, _, fraction, ok := GridBeatContext(otherGrid, otherPosition)
		if !ok {
			return thisPosition
		}
		otherFraction = fraction
	}

	thisNearNext := thisNextBeat-thisPosition <= thisPosition-thisPrevBeat
	otherNearNext := otherFraction >= 0.5

	// Same-side alignment anchors the target fraction on our previous
	// beat. Mismatched sides mean the sync press straddled a beat: we
	// are near next while the reference just wrapped (late press), so
	// anchor forward; or we just wrapped while the reference has not
	// (early press), so anchor a full beat further back.
	newPlaypos := (otherFraction + tc.userOffset.Get()) * thisBeatLength
	switch {
	case thisNearNext == otherNearNext:
		newPlaypos += thisPrevBeat
	case thisNearNext && !otherNearNext:
		newPlaypos += thisNextBeat
	default:
		doublePrev, ok := g.NthBeat(thisPosition, -2)
		if !ok {
			return thisPosition
		}
		newPlaypos += doublePrev
	}

	if respectLoops {
		// The aligned position may land outside an active loop. Wrap
		// it back in and re-align the wrapped position; the recursion
		// terminates because the inner call does not respect loops.
		// Seeking to before the loop is left alone: loops catch.
		loopEnabled := tc.co.LoopEnabled.Bool()
		loopStart := tc.co.LoopStart.Get()
		loopEnd := tc.co.LoopEnd.Get()
		if loopEnabled && thisPosition <= loopEnd {
			loopLength := loopEnd - loopStart
			endDelta := newPlaypos - loopEnd
			if endDelta > 0 && loopLength > 0 {
				i := int(endDelta / loopLength)
				newPlaypos = loopStart + endDelta - float64(i)*loopLength
				newPlaypos = tc.NearestPositionInPhase(newPlaypos, false, playing)
			}
		}
	}

	return newPlaypos
}

// PhaseOffset is the distance from pos to its phase-aligned position,
// ignoring loops.
func (tc *TempoControl) PhaseOffset(pos float64) float64 {
	return tc.NearestPositionInPhase(pos, false, false) - pos
}
