package bpm

import "math"

// CalcSyncedRate produces this callback's playback-rate ratio for a synced
// deck: the master's momentary BPM over our local BPM, times a small phase
// correction. userTweak is the operator's momentary rate input (wheel,
// nudge); while it is nonzero the adjuster stands down and records the
// resulting offset instead of fighting it. Audio thread.
func (tc *TempoControl) CalcSyncedRate(userTweak float64) float64 {
	rate := 1.0
	if localBpm := tc.co.LocalBpm.Get(); localBpm != 0 {
		rate = tc.instantaneousBpm.Get() / localBpm
	}

	// Unquantized, master, gridless, or reversed decks take the raw
	// rate; there is no phase to hold.
	if !tc.co.Quantize.Bool() || tc.syncMode() == SyncMaster ||
		tc.beats() == nil || tc.co.Reverse.Bool() {
		tc.resetAdjustment.Store(true)
		return rate + userTweak
	}

	pos := tc.currentSample.Get()
	beatLength, myFraction, ok := BeatContext(pos, tc.co.PrevBeat.Get(), tc.co.NextBeat.Get())
	if !ok {
		tc.resetAdjustment.Store(true)
		return rate + userTweak
	}

	// Inside a loop shorter than one beat the beat fraction never
	// completes a cycle, so phase offset is meaningless.
	loopSize := (tc.co.LoopEnd.Get() - tc.co.LoopStart.Get()) / beatLength
	if tc.co.LoopEnabled.Bool() && loopSize < 1.0 && loopSize > 0 {
		tc.resetAdjustment.Store(true)
		return rate + userTweak
	}

	adjustment := tc.calcSyncAdjustment(myFraction, userTweak != 0)
	return (rate + userTweak) * adjustment
}

// calcSyncAdjustment is the proportional control step: compare our beat
// fraction against the master's, subtract the user offset, and nudge the
// rate toward zero error. The step is double-capped: the change since the
// last callback and the absolute deviation from unity.
func (tc *TempoControl) calcSyncAdjustment(myFraction float64, userTweaking bool) float64 {
	if tc.resetAdjustment.CompareAndSwap(true, false) {
		tc.lastAdjustment = 1.0
	}

	masterFraction := tc.targetBeatDistance.Get()
	shortestDistance := ShortestPercentageChange(masterFraction, myFraction)

	adjustment := 1.0
	if userTweaking {
		// The operator is steering; absorb the distance as their
		// chosen offset and do nothing.
		tc.userOffset.Set(shortestDistance)
	} else {
		err := shortestDistance - tc.userOffset.Get()
		switch {
		case math.Abs(err) > trainWreckThreshold:
			// So far out we cannot tell ahead from behind; assume a
			// late sync press and speed up to catch the master.
			adjustment = 1.0 + syncAdjustmentCap
		case math.Abs(err) > errorThreshold:
			adjust := 1.0 + (-err * syncAdjustmentProportion)
			delta := clamp(adjust-tc.lastAdjustment, -syncDeltaCap, syncDeltaCap)
			adjustment = 1.0 + clamp(
				tc.lastAdjustment-1.0+delta,
				-syncAdjustmentCap, syncAdjustmentCap)
		default:
			// In sync.
			adjustment = 1.0
		}
	}
	tc.lastAdjustment = adjustment
	return adjustment
}
