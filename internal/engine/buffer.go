package engine

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/beatlock/internal/beats"
	"github.com/satindergrewal/beatlock/internal/bpm"
	"github.com/satindergrewal/beatlock/internal/control"
	"github.com/satindergrewal/beatlock/internal/track"
)

// Buffer is one deck's engine: it owns the playhead, runs the per-callback
// sequence against the tempo controller, and exposes the peer-query
// surface other decks use for beat sync.
type Buffer struct {
	group string
	co    *control.Deck
	tempo *bpm.TempoControl

	trk atomic.Pointer[track.Track]

	position  *control.Value // stereo samples
	speed     *control.Value // rate ratio of the last callback
	userTweak *control.Value // momentary operator rate input

	seekCh  chan float64
	phaseCh chan struct{}

	events *Broadcaster
}

// NewBuffer creates a deck engine with a fresh control record and tempo
// controller wired to it.
func NewBuffer(group string) *Buffer {
	b := &Buffer{
		group:     group,
		co:        control.NewDeck(),
		position:  control.NewValue(0),
		speed:     control.NewValue(0),
		userTweak: control.NewValue(0),
		seekCh:    make(chan float64, 1),
		phaseCh:   make(chan struct{}, 1),
		events:    NewBroadcaster(),
	}
	b.tempo = bpm.NewTempoControl(group, b.co)
	b.tempo.SetSyncPhaseFunc(b.RequestSyncPhase)
	return b
}

// Group returns the deck's group name.
func (b *Buffer) Group() string { return b.group }

// Controls returns the deck's observable record.
func (b *Buffer) Controls() *control.Deck { return b.co }

// Tempo returns the deck's tempo controller.
func (b *Buffer) Tempo() *bpm.TempoControl { return b.tempo }

// Events returns the deck's stats broadcaster.
func (b *Buffer) Events() *Broadcaster { return b.events }

// LoadTrack binds a track (or nil to eject) and rewinds the playhead.
func (b *Buffer) LoadTrack(t *track.Track) {
	b.trk.Store(t)
	b.tempo.TrackLoaded(t)
	b.position.Set(0)
	if t != nil {
		b.co.FileBpm.Set(t.FileBpm)
	}
}

// LoadedTrack returns the current track, or nil.
func (b *Buffer) LoadedTrack() *track.Track { return b.trk.Load() }

// Seek requests a jump to an absolute position; applied at the next
// callback boundary. Non-blocking, last request wins.
func (b *Buffer) Seek(pos float64) {
	select {
	case <-b.seekCh:
	default:
	}
	b.seekCh <- pos
}

// RequestSyncPhase asks the engine to seek to the phase-aligned position
// at the next callback boundary.
func (b *Buffer) RequestSyncPhase() {
	select {
	case b.phaseCh <- struct{}{}:
	default:
	}
}

// Nudge sets the momentary user rate tweak. Zero releases it.
func (b *Buffer) Nudge(tweak float64) {
	b.userTweak.Set(tweak)
}

// --- bpm.PeerDeck ---

// Bpm returns the deck's effective BPM.
func (b *Buffer) Bpm() float64 { return b.co.EngineBpm.Get() }

// LocalBpm returns the BPM measured around the playhead.
func (b *Buffer) LocalBpm() float64 { return b.co.LocalBpm.Get() }

// Speed returns the rate ratio of the last callback, 0 when stopped.
func (b *Buffer) Speed() float64 { return b.speed.Get() }

// PlayPosition returns the playhead as a fraction of the track.
func (b *Buffer) PlayPosition() float64 {
	t := b.trk.Load()
	if t == nil || t.TotalSamples == 0 {
		return 0
	}
	return b.position.Get() / t.TotalSamples
}

// TrackSamples returns the loaded track's length in stereo samples.
func (b *Buffer) TrackSamples() float64 {
	t := b.trk.Load()
	if t == nil {
		return 0
	}
	return t.TotalSamples
}

// Beats returns the loaded track's grid, or nil.
func (b *Buffer) Beats() beats.Grid {
	t := b.trk.Load()
	if t == nil {
		return nil
	}
	return t.Beats()
}

// Position returns the playhead in stereo samples.
func (b *Buffer) Position() float64 { return b.position.Get() }

// Run drives the callback clock until ctx is cancelled.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(CallbackDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Step()
		}
	}
}

// Step runs one audio callback: apply pending seeks, refresh the beat
// mirrors, run the tempo sequence, and advance the playhead by the
// resulting rate. Returns the rate. Exposed so tests and the session
// clock can step deterministically.
func (b *Buffer) Step() float64 {
	t := b.trk.Load()
	if t == nil {
		b.speed.Set(0)
		return 0
	}

	select {
	case pos := <-b.seekCh:
		b.position.Set(pos)
	default:
	}
	select {
	case <-b.phaseCh:
		aligned := b.tempo.NearestPositionInPhase(b.position.Get(), true, b.co.Play.Bool())
		b.position.Set(aligned)
	default:
	}

	pos := b.position.Get()
	b.refreshBeatMirrors(t, pos)

	b.tempo.Process(pos, t.TotalSamples)
	b.tempo.UpdateLocalBpm()
	distance := b.tempo.UpdateBeatDistance()

	rate := 0.0
	if b.co.Play.Bool() {
		if bpm.SyncMode(int(b.co.SyncMode.Get())) == bpm.SyncFollower {
			rate = b.tempo.CalcSyncedRate(b.userTweak.Get())
		} else {
			rate = b.tempo.RateRatio() + b.userTweak.Get()
		}
		if b.co.Reverse.Bool() {
			rate = -rate
		}
	}

	frames := float64(t.SampleRate) * CallbackDuration.Seconds()
	next := pos + rate*frames*Channels

	if b.co.LoopEnabled.Bool() {
		loopStart := b.co.LoopStart.Get()
		loopEnd := b.co.LoopEnd.Get()
		if loopEnd > loopStart && next >= loopEnd {
			next = loopStart + math.Mod(next-loopEnd, loopEnd-loopStart)
		}
	}
	if next >= t.TotalSamples {
		next = t.TotalSamples
		b.co.Play.Set(0)
	}
	if next < 0 {
		next = 0
	}

	b.position.Set(next)
	b.speed.Set(rate)

	b.events.Publish(Stats{
		Group:        b.group,
		Position:     next,
		BeatDistance: distance,
		Rate:         rate,
		EngineBpm:    b.co.EngineBpm.Get(),
	})
	return rate
}

func (b *Buffer) refreshBeatMirrors(t *track.Track, pos float64) {
	g := t.Beats()
	if g == nil {
		b.co.PrevBeat.Set(control.AbsentBeat)
		b.co.NextBeat.Set(control.AbsentBeat)
		b.co.ClosestBeat.Set(control.AbsentBeat)
		return
	}
	if prev, next, ok := g.PrevNextBeats(pos); ok {
		b.co.PrevBeat.Set(prev)
		b.co.NextBeat.Set(next)
	} else {
		b.co.PrevBeat.Set(control.AbsentBeat)
		b.co.NextBeat.Set(control.AbsentBeat)
	}
	if closest, ok := g.ClosestBeat(pos); ok {
		b.co.ClosestBeat.Set(closest)
	} else {
		b.co.ClosestBeat.Set(control.AbsentBeat)
	}
}
