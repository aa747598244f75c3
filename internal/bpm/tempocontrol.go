package bpm

import (
	"math"
	"sync/atomic"

	"github.com/satindergrewal/beatlock/internal/beats"
	"github.com/satindergrewal/beatlock/internal/control"
	"github.com/satindergrewal/beatlock/internal/track"
)

// PeerDeck is the view of another deck the tempo core needs for one-shot
// beat sync and phase queries. The engine buffer implements it.
type PeerDeck interface {
	Bpm() float64
	LocalBpm() float64
	Speed() float64
	PlayPosition() float64 // fraction of the track, 0..1
	TrackSamples() float64
	Beats() beats.Grid
}

// SyncTargetFunc supplies the deck another deck should sync against, or
// nil when there is none. Target election lives outside the core.
type SyncTargetFunc func() PeerDeck

// Features carries the per-deck values downstream visualizers key off.
type Features struct {
	HasBeatLength   bool
	BeatLengthSec   float64
	HasBeatFraction bool
	BeatFraction    float64
}

// TempoControl is the per-deck tempo and sync façade. It owns the deck's
// tap filter, the user phase offset, and the sync adjuster state, and
// publishes bpm and beat-distance through the deck's observable record.
type TempoControl struct {
	group string
	co    *control.Deck

	trk atomic.Pointer[track.Track]

	// Playhead snapshot, written by the engine each callback.
	currentSample *control.Value
	totalSamples  *control.Value

	// Cross-deck inputs pushed by the sync manager.
	targetBeatDistance *control.Value
	instantaneousBpm   *control.Value

	// Operator phase offset between this deck and the master, preserved
	// so the adjuster does not fight manual nudges.
	userOffset *control.Value

	resetAdjustment atomic.Bool
	lastAdjustment  float64 // audio thread only

	tap *TapFilter

	pickTarget SyncTargetFunc
	syncPhase  func()
}

// NewTempoControl wires a controller onto a deck record. The pushbuttons
// and rate values are subscribed here, so external writes to the record
// drive the controller directly.
func NewTempoControl(group string, co *control.Deck) *TempoControl {
	tc := &TempoControl{
		group:              group,
		co:                 co,
		currentSample:      control.NewValue(0),
		totalSamples:       control.NewValue(0),
		targetBeatDistance: control.NewValue(0),
		instantaneousBpm:   control.NewValue(0),
		userOffset:         control.NewValue(0),
		lastAdjustment:     1.0,
	}
	tc.tap = NewTapFilter(tapFilterLength, maxTapInterval, tc.tapFilter)

	co.RateSlider.Subscribe(func(float64) { tc.updateEngineBpm() })
	co.RateRange.Subscribe(func(float64) { tc.updateRateSlider() })
	co.RateDir.Subscribe(func(float64) { tc.updateEngineBpm() })
	co.EngineBpm.Subscribe(func(float64) { tc.updateRateSlider() })
	co.FileBpm.Subscribe(tc.fileBpmChanged)

	co.Tap.Subscribe(func(v float64) {
		if v > 0 {
			tc.tap.Tap()
		}
	})
	co.BeatSync.Subscribe(tc.beatSync)
	co.BeatSyncPhase.Subscribe(tc.beatSyncPhase)
	co.BeatSyncTempo.Subscribe(tc.beatSyncTempo)
	co.AdjustBeatsFaster.Subscribe(tc.adjustBeatsFaster)
	co.AdjustBeatsSlower.Subscribe(tc.adjustBeatsSlower)
	co.TranslateBeatsEarlier.Subscribe(tc.translateBeatsEarlier)
	co.TranslateBeatsLater.Subscribe(tc.translateBeatsLater)
	co.TranslateBeatsCurpos.Subscribe(tc.translateBeatsCurpos)
	co.TranslateBeatsMatchAlignment.Subscribe(tc.translateBeatsMatchAlignment)

	return tc
}

// SetSyncTargetFunc installs the supplier of sync targets for decks not in
// follower mode.
func (tc *TempoControl) SetSyncTargetFunc(fn SyncTargetFunc) {
	tc.pickTarget = fn
}

// SetSyncPhaseFunc installs the engine hook that seeks this deck to the
// phase-aligned position.
func (tc *TempoControl) SetSyncPhaseFunc(fn func()) {
	tc.syncPhase = fn
}

// TrackLoaded rebinds the controller to a newly loaded track, or clears it
// on eject when t is nil. Reused across loads; deck state carries over
// except for the sync adjustment.
func (tc *TempoControl) TrackLoaded(t *track.Track) {
	tc.ResetSyncAdjustment()
	tc.trk.Store(t)
	if t != nil {
		t.OnBeatsChanged(tc.beatsUpdated)
	}
}

func (tc *TempoControl) beatsUpdated() {
	tc.ResetSyncAdjustment()
}

func (tc *TempoControl) loadedTrack() *track.Track {
	return tc.trk.Load()
}

func (tc *TempoControl) beats() beats.Grid {
	t := tc.trk.Load()
	if t == nil {
		return nil
	}
	return t.Beats()
}

func (tc *TempoControl) syncMode() SyncMode {
	return SyncMode(int(tc.co.SyncMode.Get()))
}

// Bpm returns the published engine BPM.
func (tc *TempoControl) Bpm() float64 {
	return tc.co.EngineBpm.Get()
}

// RateRatio is the playback rate implied by the slider: 1 plus direction
// times range times slider position.
func (tc *TempoControl) RateRatio() float64 {
	return 1.0 + tc.co.RateDir.Get()*tc.co.RateRange.Get()*tc.co.RateSlider.Get()
}

// Process records the playhead for this callback. Runs on the audio
// thread before the other per-callback entry points.
func (tc *TempoControl) Process(currentSample, totalSamples float64) {
	tc.currentSample.Set(currentSample)
	tc.totalSamples.Set(totalSamples)
}

// SetTargetBeatDistance receives the master's beat distance, pushed by the
// sync manager each callback.
func (tc *TempoControl) SetTargetBeatDistance(d float64) {
	tc.targetBeatDistance.Set(d)
}

// SetInstantaneousBpm receives the master's momentary BPM.
func (tc *TempoControl) SetInstantaneousBpm(bpm float64) {
	tc.instantaneousBpm.Set(bpm)
}

// UpdateLocalBpm re-measures the BPM around the playhead and, when it
// moved, republishes local and engine BPM. Audio thread.
func (tc *TempoControl) UpdateLocalBpm() float64 {
	prev := tc.co.LocalBpm.Get()
	local := tc.co.FileBpm.Get()
	if g := tc.beats(); g != nil {
		if measured, ok := g.BpmAround(tc.currentSample.Get(), localBpmSpan); ok {
			local = measured
		}
	}
	if local != prev {
		tc.co.LocalBpm.Set(local)
		tc.updateEngineBpm()
	}
	return local
}

// UpdateBeatDistance publishes the playhead's beat distance. A deck not in
// sync keeps no user offset. Audio thread.
func (tc *TempoControl) UpdateBeatDistance() float64 {
	distance := tc.BeatDistance(tc.currentSample.Get())
	tc.co.BeatDistance.Set(distance)
	if tc.syncMode() == SyncNone {
		tc.userOffset.Set(0)
	}
	return distance
}

// BeatDistance reports the beat fraction at pos minus the user offset. The
// offset correction keeps the reported distance comparable across decks:
// the sync manager feeds it back as the clock distance, and an unadjusted
// report would make the deck chase its own nudge.
func (tc *TempoControl) BeatDistance(pos float64) float64 {
	prevBeat := tc.co.PrevBeat.Get()
	nextBeat := tc.co.NextBeat.Get()
	_, fraction, ok := BeatContext(pos, prevBeat, nextBeat)
	if !ok {
		return 0 - tc.userOffset.Get()
	}
	return fraction - tc.userOffset.Get()
}

// ResetSyncAdjustment folds the user offset into the published beat
// distance, clears it, and arms the adjuster reset.
func (tc *TempoControl) ResetSyncAdjustment() {
	tc.co.BeatDistance.Set(tc.co.BeatDistance.Get() + tc.userOffset.Get())
	tc.userOffset.Set(0)
	tc.resetAdjustment.Store(true)
}

// CollectFeatures publishes beat length and fraction for downstream
// consumers. Beat length converts from interleaved stereo samples to
// seconds, scaled by the current rate.
func (tc *TempoControl) CollectFeatures(f *Features) {
	t := tc.loadedTrack()
	if t == nil || t.Beats() == nil {
		return
	}
	pos := tc.currentSample.Get()
	length, fraction, ok := BeatContext(pos, tc.co.PrevBeat.Get(), tc.co.NextBeat.Get())
	if !ok {
		return
	}
	f.HasBeatLength = true
	f.BeatLengthSec = length / float64(t.SampleRate) / 2 * tc.RateRatio()
	f.HasBeatFraction = true
	f.BeatFraction = fraction
}

// --- rate wiring ---

func (tc *TempoControl) updateEngineBpm() {
	tc.co.EngineBpm.Set(tc.co.LocalBpm.Get() * tc.RateRatio())
}

func (tc *TempoControl) updateRateSlider() {
	localBpm := tc.co.LocalBpm.Get()
	rateScale := tc.co.RateDir.Get() * tc.co.RateRange.Get()
	if localBpm == 0 || rateScale == 0 {
		return
	}
	tc.co.RateSlider.Set((tc.co.EngineBpm.Get()/localBpm - 1.0) / rateScale)
}

func (tc *TempoControl) fileBpmChanged(bpm float64) {
	local := bpm
	if g := tc.beats(); g != nil {
		if measured, ok := g.BpmAround(tc.currentSample.Get(), localBpmSpan); ok {
			local = measured
		}
	}
	tc.co.LocalBpm.Set(local)
	// A synced deck gets its engine BPM from the sync manager instead.
	if tc.syncMode() == SyncNone {
		tc.updateEngineBpm()
	}
	tc.ResetSyncAdjustment()
}

// --- tap tempo ---

func (tc *TempoControl) tapFilter(averageLength float64, numSamples int) {
	if averageLength <= 0 {
		return
	}
	if numSamples < 4 {
		return
	}
	averageBpm := 60.0 * 1000.0 / averageLength
	tc.co.FileBpm.Set(averageBpm / tc.RateRatio())
	tc.updateEngineBpm()
}

// --- beat sync buttons ---

func (tc *TempoControl) beatSync(v float64) {
	if v <= 0 {
		return
	}
	// Tempo first; adjust phase only if the deck is rolling.
	if tc.SyncTempo() && tc.co.Play.Bool() {
		tc.requestSyncPhase()
	}
}

func (tc *TempoControl) beatSyncPhase(v float64) {
	if v <= 0 {
		return
	}
	tc.requestSyncPhase()
}

func (tc *TempoControl) beatSyncTempo(v float64) {
	if v <= 0 {
		return
	}
	tc.SyncTempo()
}

func (tc *TempoControl) requestSyncPhase() {
	if tc.syncPhase != nil {
		tc.syncPhase()
	}
}

// SyncTempo matches this deck's tempo to the picked sync target in one
// shot. Returns false when there is no target or the required rate is out
// of range.
func (tc *TempoControl) SyncTempo() bool {
	if tc.pickTarget == nil {
		return false
	}
	other := tc.pickTarget()
	if other == nil {
		return false
	}

	thisBpm := tc.co.EngineBpm.Get()
	thisLocalBpm := tc.co.LocalBpm.Get()
	otherBpm := other.Bpm()
	otherLocalBpm := other.LocalBpm()

	if otherBpm <= 0 || thisBpm <= 0 {
		return false
	}

	// The rate that makes this deck's effective BPM equal the target's.
	desiredRate := otherBpm / thisLocalBpm

	// Beat analysis sometimes reports half or double the real tempo.
	// When doubling (or halving) our local BPM lands closer to the
	// target's, scale the rate instead of chasing a 2x tempo.
	bpmDelta := math.Abs(thisLocalBpm - otherLocalBpm)
	if math.Abs(thisLocalBpm*2-otherLocalBpm) < bpmDelta {
		desiredRate /= 2
	} else if math.Abs(thisLocalBpm-2*otherLocalBpm) < bpmDelta {
		desiredRate *= 2
	}

	// desiredRateShift is the fractional change in playback rate. Keep
	// the deck between 0.5x and 2x.
	desiredRateShift := desiredRate - 1.0
	if desiredRateShift >= 1.0 || desiredRateShift <= -0.5 {
		return false
	}

	tc.co.EngineBpm.Set(tc.co.LocalBpm.Get() * desiredRate)
	tc.co.RateSlider.Set(desiredRateShift / (tc.co.RateRange.Get() * tc.co.RateDir.Get()))
	return true
}

// --- grid edits ---

func (tc *TempoControl) adjustBeatsFaster(v float64) {
	if v <= 0 {
		return
	}
	t := tc.loadedTrack()
	if t == nil {
		return
	}
	g := t.Beats()
	if g == nil || g.Capabilities()&beats.CapSetBpm == 0 {
		return
	}
	if ng, ok := g.SetBpm(math.Min(maxGridBpm, g.Bpm()+bpmAdjustStep)); ok {
		t.SetBeats(ng)
	}
}

func (tc *TempoControl) adjustBeatsSlower(v float64) {
	if v <= 0 {
		return
	}
	t := tc.loadedTrack()
	if t == nil {
		return
	}
	g := t.Beats()
	if g == nil || g.Capabilities()&beats.CapSetBpm == 0 {
		return
	}
	if ng, ok := g.SetBpm(math.Max(minGridBpm, g.Bpm()-bpmAdjustStep)); ok {
		t.SetBeats(ng)
	}
}

func (tc *TempoControl) translateBeatsEarlier(v float64) {
	if v <= 0 {
		return
	}
	tc.translateBeats(-translateStepSec)
}

func (tc *TempoControl) translateBeatsLater(v float64) {
	if v <= 0 {
		return
	}
	tc.translateBeats(translateStepSec)
}

func (tc *TempoControl) translateBeats(stepSec float64) {
	t := tc.loadedTrack()
	if t == nil {
		return
	}
	g := t.Beats()
	if g == nil || g.Capabilities()&beats.CapTranslate == 0 {
		return
	}
	if ng, ok := g.Translate(float64(t.SampleRate) * stepSec); ok {
		t.SetBeats(ng)
	}
}

// translateBeatsCurpos snaps the nearest grid beat onto the playhead. The
// shift is forced even so beats stay on stereo frame boundaries.
func (tc *TempoControl) translateBeatsCurpos(v float64) {
	if v <= 0 {
		return
	}
	t := tc.loadedTrack()
	if t == nil {
		return
	}
	g := t.Beats()
	if g == nil || g.Capabilities()&beats.CapTranslate == 0 {
		return
	}
	currentSample := tc.currentSample.Get()
	closestBeat, ok := g.ClosestBeat(currentSample)
	if !ok {
		return
	}
	delta := int(currentSample - closestBeat)
	if delta%2 != 0 {
		delta--
	}
	if ng, ok := g.Translate(float64(delta)); ok {
		t.SetBeats(ng)
	}
}

func (tc *TempoControl) translateBeatsMatchAlignment(v float64) {
	if v <= 0 {
		return
	}
	t := tc.loadedTrack()
	if t == nil {
		return
	}
	g := t.Beats()
	if g == nil || g.Capabilities()&beats.CapTranslate == 0 {
		return
	}
	// Clear the user offset first, otherwise the phase offset of a
	// synced deck is always zero.
	tc.userOffset.Set(0)
	offset := tc.PhaseOffset(tc.currentSample.Get())
	if ng, ok := g.Translate(-offset); ok {
		t.SetBeats(ng)
	}
}
