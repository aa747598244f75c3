package bpm

import (
	"math"
	"testing"

	"github.com/satindergrewal/beatlock/internal/beats"
	"github.com/satindergrewal/beatlock/internal/control"
	"github.com/satindergrewal/beatlock/internal/track"
)

// pushButton presses and releases a momentary control.
func pushButton(v *control.Value) {
	v.Set(1)
	v.Set(0)
}

// --- rate wiring ---

func TestEngineBpmIdentity(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.LocalBpm.Set(100)

	steps := []func(){
		func() { co.RateSlider.Set(0.5) },
		func() { co.RateRange.Set(0.1) },
		func() { co.RateDir.Set(-1) },
		func() { co.RateSlider.Set(-0.25) },
	}
	for i, step := range steps {
		step()
		want := co.LocalBpm.Get() * (1 + co.RateDir.Get()*co.RateRange.Get()*co.RateSlider.Get())
		if got := tc.Bpm(); math.Abs(got-want) > 1e-9 {
			t.Errorf("step %d: engineBpm = %v, want %v", i, got, want)
		}
	}
}

func TestEngineBpmDrivesSlider(t *testing.T) {
	co := control.NewDeck()
	NewTempoControl("[Channel1]", co)
	co.LocalBpm.Set(100)
	co.EngineBpm.Set(104)
	// slider = (104/100 - 1) / (1 * 0.08) = 0.5
	if got := co.RateSlider.Get(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("slider = %v, want 0.5", got)
	}
}

func TestEngineBpmNoOpOnZeroDenominator(t *testing.T) {
	co := control.NewDeck()
	NewTempoControl("[Channel1]", co)
	co.LocalBpm.Set(0)
	co.EngineBpm.Set(104)
	if got := co.RateSlider.Get(); got != 0 {
		t.Errorf("slider moved with zero local bpm: %v", got)
	}

	co2 := control.NewDeck()
	NewTempoControl("[Channel2]", co2)
	co2.LocalBpm.Set(100)
	co2.RateRange.Set(0)
	co2.EngineBpm.Set(104)
	if got := co2.RateSlider.Get(); got != 0 {
		t.Errorf("slider moved with zero rate range: %v", got)
	}
}

// --- file bpm and local bpm ---

func TestFileBpmWithoutGrid(t *testing.T) {
	co := control.NewDeck()
	NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(128)
	if got := co.LocalBpm.Get(); got != 128 {
		t.Errorf("localBpm = %v, want file bpm 128", got)
	}
	if got := co.EngineBpm.Get(); got != 128 {
		t.Errorf("engineBpm = %v, want 128 at neutral rate", got)
	}
}

func TestFileBpmPrefersGridMeasurement(t *testing.T) {
	tc, co, _ := newFollowerControl(t)
	co.SyncMode.Set(float64(SyncNone))
	tc.Process(5e6, 1e7) // mid-track, window fits
	co.FileBpm.Set(99)
	if got := co.LocalBpm.Get(); got != 120 {
		t.Errorf("localBpm = %v, want grid measurement 120", got)
	}
}

func TestUpdateLocalBpmFallsBackToFileBpm(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(95)
	co.LocalBpm.Set(0)
	if got := tc.UpdateLocalBpm(); got != 95 {
		t.Errorf("UpdateLocalBpm = %v, want file bpm 95", got)
	}
	if got := co.EngineBpm.Get(); got != 95 {
		t.Errorf("engineBpm = %v, want 95", got)
	}
}

func TestUpdateLocalBpmUsesGrid(t *testing.T) {
	tc, co, _ := newFollowerControl(t)
	co.FileBpm.Set(99)
	tc.Process(5e6, 1e7)
	if got := tc.UpdateLocalBpm(); got != 120 {
		t.Errorf("UpdateLocalBpm = %v, want 120 from the grid", got)
	}
}

// --- tap tempo ---

func TestTapAssignsFileBpm(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	tc.tapFilter(500, 5) // 120 BPM at neutral rate
	if got := co.FileBpm.Get(); math.Abs(got-120) > 1e-9 {
		t.Errorf("fileBpm = %v, want 120", got)
	}
}

func TestTapDividesOutRateRatio(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.LocalBpm.Set(100)
	co.RateSlider.Set(0.5) // ratio 1.04
	tc.tapFilter(500, 5)
	want := 120.0 / 1.04
	if got := co.FileBpm.Get(); math.Abs(got-want) > 1e-9 {
		t.Errorf("fileBpm = %v, want %v", got, want)
	}
}

func TestTapIgnoresShortWindows(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	tc.tapFilter(500, 3)
	if got := co.FileBpm.Get(); got != 0 {
		t.Errorf("fileBpm = %v, want unchanged after 3-sample window", got)
	}
	tc.tapFilter(0, 5)
	if got := co.FileBpm.Get(); got != 0 {
		t.Errorf("fileBpm = %v, want unchanged after zero interval", got)
	}
}

// --- grid edit buttons ---

func TestAdjustBeatsFaster(t *testing.T) {
	_, co, trk := newFollowerControl(t)
	pushButton(co.AdjustBeatsFaster)
	if got := trk.Beats().Bpm(); math.Abs(got-120.01) > 1e-9 {
		t.Errorf("grid bpm = %v, want 120.01", got)
	}
}

func TestAdjustBeatsSlowerClamps(t *testing.T) {
	_, co, trk := newFollowerControl(t)
	g, _ := beats.NewFixedGrid(44100, minGridBpm, 0, 1e7)
	trk.SetBeats(g)
	pushButton(co.AdjustBeatsSlower)
	if got := trk.Beats().Bpm(); got != minGridBpm {
		t.Errorf("grid bpm = %v, want clamped at %v", got, minGridBpm)
	}
}

func TestAdjustBeatsNeedsCapability(t *testing.T) {
	_, co, trk := newFollowerControl(t)
	m, err := beats.NewBeatMap(44100, []float64{0, 44100, 88200})
	if err != nil {
		t.Fatal(err)
	}
	trk.SetBeats(m)
	pushButton(co.AdjustBeatsFaster)
	if got := trk.Beats().Bpm(); math.Abs(got-120) > 1e-9 {
		t.Errorf("beat map bpm changed to %v; SetBpm requires the capability", got)
	}
}

func TestTranslateBeatsLater(t *testing.T) {
	_, co, trk := newFollowerControl(t)
	pushButton(co.TranslateBeatsLater)
	// 0.01 * 44100 = 441 samples later.
	if got, _ := trk.Beats().ClosestBeat(0); got != 441 {
		t.Errorf("first beat = %v, want 441", got)
	}
	pushButton(co.TranslateBeatsEarlier)
	if got, _ := trk.Beats().ClosestBeat(0); got != 0 {
		t.Errorf("first beat after undo = %v, want 0", got)
	}
}

func TestTranslateBeatsCurposEvenDelta(t *testing.T) {
	tc, co, trk := newFollowerControl(t)
	tc.Process(1001, 1e7) // closest beat is 0; delta 1001 is odd
	pushButton(co.TranslateBeatsCurpos)
	if got, _ := trk.Beats().ClosestBeat(900); got != 1000 {
		t.Errorf("first beat = %v, want 1000 (odd delta rounded to even)", got)
	}
}

func TestTranslateBeatsMatchAlignment(t *testing.T) {
	tc, co, trk := newFollowerControl(t)
	tc.SetTargetBeatDistance(0.3)
	tc.userOffset.Set(0.25) // must be cleared before the offset is measured
	pos := beatLen + 0.25*beatLen
	tc.Process(pos, 1e7)
	pushButton(co.TranslateBeatsMatchAlignment)

	// Aligned position is 0.3 of a beat past our previous beat; the grid
	// moves by the negated offset so the playhead now sits at 0.3.
	_, _, _, fraction, ok := GridBeatContext(trk.Beats(), pos)
	if !ok {
		t.Fatal("no beat context after translate")
	}
	if math.Abs(fraction-0.3) > 1e-9 {
		t.Errorf("fraction after match alignment = %v, want 0.3", fraction)
	}
	if tc.userOffset.Get() != 0 {
		t.Errorf("userOffset = %v, want cleared", tc.userOffset.Get())
	}
}

// --- one-shot tempo sync ---

func TestSyncTempoHalfBpmDetection(t *testing.T) {
	// 60 BPM deck syncing to a 120 BPM target: the desired 2x rate is a
	// half-BPM artifact, so it halves to 1x and the slider stays home.
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(60) // local 60, engine 60
	tc.SetSyncTargetFunc(func() PeerDeck {
		return &fakePeer{bpm: 120, localBpm: 120}
	})

	if !tc.SyncTempo() {
		t.Fatal("SyncTempo failed")
	}
	if got := co.EngineBpm.Get(); math.Abs(got-60) > 1e-9 {
		t.Errorf("engineBpm = %v, want 60", got)
	}
	if got := co.RateSlider.Get(); math.Abs(got) > 1e-9 {
		t.Errorf("slider = %v, want 0", got)
	}
}

func TestSyncTempoDoubleBpmDetection(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(140) // local 140
	tc.SetSyncTargetFunc(func() PeerDeck {
		return &fakePeer{bpm: 70, localBpm: 70}
	})

	if !tc.SyncTempo() {
		t.Fatal("SyncTempo failed")
	}
	if got := co.EngineBpm.Get(); math.Abs(got-140) > 1e-9 {
		t.Errorf("engineBpm = %v, want 140 (doubled desired rate)", got)
	}
}

func TestSyncTempoMatchesRate(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(120)
	tc.SetSyncTargetFunc(func() PeerDeck {
		return &fakePeer{bpm: 124, localBpm: 124}
	})

	if !tc.SyncTempo() {
		t.Fatal("SyncTempo failed")
	}
	want := 124.0
	if got := co.EngineBpm.Get(); math.Abs(got-want) > 1e-9 {
		t.Errorf("engineBpm = %v, want %v", got, want)
	}
	// slider = ((124/120) - 1) / 0.08
	wantSlider := (124.0/120.0 - 1) / 0.08
	if got := co.RateSlider.Get(); math.Abs(got-wantSlider) > 1e-6 {
		t.Errorf("slider = %v, want %v", got, wantSlider)
	}
}

func TestSyncTempoRejectsExtremeRates(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(60)
	tc.SetSyncTargetFunc(func() PeerDeck {
		return &fakePeer{bpm: 300, localBpm: 300}
	})
	if tc.SyncTempo() {
		t.Error("SyncTempo should refuse a rate outside 0.5x..2x")
	}
}

func TestSyncTempoNoTarget(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(120)
	if tc.SyncTempo() {
		t.Error("SyncTempo with no target should fail")
	}
	tc.SetSyncTargetFunc(func() PeerDeck { return nil })
	if tc.SyncTempo() {
		t.Error("SyncTempo with a nil target should fail")
	}
}

// --- beat sync buttons ---

func TestBeatSyncRequestsPhaseWhenPlaying(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	co.FileBpm.Set(120)
	tc.SetSyncTargetFunc(func() PeerDeck {
		return &fakePeer{bpm: 124, localBpm: 124}
	})
	phaseRequests := 0
	tc.SetSyncPhaseFunc(func() { phaseRequests++ })

	pushButton(co.BeatSync)
	if phaseRequests != 0 {
		t.Error("stopped deck should not phase-seek on beatsync")
	}

	co.Play.Set(1)
	pushButton(co.BeatSync)
	if phaseRequests != 1 {
		t.Errorf("phase requests = %d, want 1", phaseRequests)
	}
}

func TestBeatSyncPhaseButton(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	phaseRequests := 0
	tc.SetSyncPhaseFunc(func() { phaseRequests++ })
	pushButton(co.BeatSyncPhase)
	if phaseRequests != 1 {
		t.Errorf("phase requests = %d, want 1", phaseRequests)
	}
}

// --- features ---

func TestCollectFeatures(t *testing.T) {
	tc, co, _ := newFollowerControl(t)
	setMirrors(co, beatLen, 2*beatLen)
	tc.Process(beatLen+0.25*beatLen, 1e7)

	var f Features
	tc.CollectFeatures(&f)
	if !f.HasBeatLength || !f.HasBeatFraction {
		t.Fatal("features missing with a valid grid and mirrors")
	}
	// 44100 stereo samples / 44100 Hz / 2 = half a second per beat.
	if math.Abs(f.BeatLengthSec-0.5) > 1e-9 {
		t.Errorf("beatLengthSec = %v, want 0.5", f.BeatLengthSec)
	}
	if math.Abs(f.BeatFraction-0.25) > 1e-9 {
		t.Errorf("beatFraction = %v, want 0.25", f.BeatFraction)
	}
}

func TestCollectFeaturesScalesWithRate(t *testing.T) {
	tc, co, _ := newFollowerControl(t)
	setMirrors(co, beatLen, 2*beatLen)
	tc.Process(beatLen+0.25*beatLen, 1e7)
	co.RateSlider.Set(0.5) // ratio 1.04

	var f Features
	tc.CollectFeatures(&f)
	if math.Abs(f.BeatLengthSec-0.5*1.04) > 1e-9 {
		t.Errorf("beatLengthSec = %v, want %v", f.BeatLengthSec, 0.5*1.04)
	}
}

func TestCollectFeaturesWithoutTrack(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	var f Features
	tc.CollectFeatures(&f)
	if f.HasBeatLength || f.HasBeatFraction {
		t.Error("features reported without a track")
	}
}

// --- track lifecycle ---

func TestTrackEjectDegradesGracefully(t *testing.T) {
	tc, co, _ := newFollowerControl(t)
	co.LocalBpm.Set(120)
	tc.SetInstantaneousBpm(120)
	tc.TrackLoaded(nil)
	if rate := tc.CalcSyncedRate(0); rate != 1.0 {
		t.Errorf("rate after eject = %v, want bare 1.0", rate)
	}
}

func TestBeatsEditResetsAdjustment(t *testing.T) {
	tc, _, trk := newFollowerControl(t)
	tc.resetAdjustment.Store(false)
	g, _ := beats.NewFixedGrid(44100, 121, 0, 1e7)
	trk.SetBeats(g)
	if !tc.resetAdjustment.Load() {
		t.Error("grid replacement should arm the adjuster reset")
	}
}

func TestTrackLoadedUsesNewGrid(t *testing.T) {
	co := control.NewDeck()
	tc := NewTempoControl("[Channel1]", co)
	trk := track.New("/music/other.flac", 48000, 2e7, 100)
	g, err := beats.NewFixedGrid(48000, 100, 0, 2e7)
	if err != nil {
		t.Fatal(err)
	}
	trk.SetBeats(g)
	tc.TrackLoaded(trk)
	tc.Process(1e7, 2e7)
	if got := tc.UpdateLocalBpm(); got != 100 {
		t.Errorf("local bpm from new grid = %v, want 100", got)
	}
}
