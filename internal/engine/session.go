package engine

import (
	"context"
	"time"

	"github.com/satindergrewal/beatlock/internal/bpm"
)

// Session drives a set of decks on one shared callback clock and stands in
// for the external sync manager: it does not elect anyone, but it relays
// the master's beat distance and momentary BPM to every follower each
// callback, and it answers target-pick queries for one-shot beat sync.
type Session struct {
	buffers []*Buffer
}

// NewSession wires the decks together. The deck set is fixed for the
// session's lifetime.
func NewSession(buffers ...*Buffer) *Session {
	s := &Session{buffers: buffers}
	for _, b := range buffers {
		b.tempo.SetSyncTargetFunc(s.targetFor(b))
	}
	return s
}

// Buffers returns the session's decks.
func (s *Session) Buffers() []*Buffer { return s.buffers }

// targetFor picks the deck b should sync against: the master if there is
// one, else another playing deck, else any other deck with a track.
func (s *Session) targetFor(me *Buffer) bpm.SyncTargetFunc {
	return func() bpm.PeerDeck {
		var playing, loaded *Buffer
		for _, b := range s.buffers {
			if b == me || b.LoadedTrack() == nil {
				continue
			}
			if bpm.SyncMode(int(b.co.SyncMode.Get())) == bpm.SyncMaster {
				return b
			}
			if b.co.Play.Bool() && playing == nil {
				playing = b
			}
			if loaded == nil {
				loaded = b
			}
		}
		if playing != nil {
			return playing
		}
		if loaded != nil {
			return loaded
		}
		return nil
	}
}

func (s *Session) master() *Buffer {
	for _, b := range s.buffers {
		if b.LoadedTrack() == nil {
			continue
		}
		if bpm.SyncMode(int(b.co.SyncMode.Get())) == bpm.SyncMaster {
			return b
		}
	}
	return nil
}

// Step runs one callback across all decks: the master first, then its
// distance and BPM are pushed to followers before they run.
func (s *Session) Step() {
	m := s.master()
	if m != nil {
		m.Step()
	}
	for _, b := range s.buffers {
		if b == m {
			continue
		}
		if m != nil && bpm.SyncMode(int(b.co.SyncMode.Get())) == bpm.SyncFollower {
			b.tempo.SetTargetBeatDistance(m.co.BeatDistance.Get())
			b.tempo.SetInstantaneousBpm(m.co.EngineBpm.Get())
		}
		b.Step()
	}
}

// Run drives the shared callback clock until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(CallbackDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}
