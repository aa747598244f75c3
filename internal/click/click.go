// Package click renders a beat-locked metronome for audible sync
// monitoring: a short sine burst on every beat, timed from the deck's
// published beat length and beat fraction.
package click

import (
	"math"

	"github.com/gopxl/beep/v2"
)

const (
	clickDurationSec = 0.030
	clickFreq        = 1000.0
	clickGain        = 0.5
	// The burst holds full level for its first quarter, then eases out.
	clickSustain = 0.25
)

// FeatureFunc supplies the deck's current beat length in seconds and beat
// fraction. ok=false silences the metronome (no grid, stopped deck).
type FeatureFunc func() (beatLengthSec, beatFraction float64, ok bool)

// Streamer is a beep.Streamer producing the click track. It never ends;
// silence streams while the deck has no beats.
type Streamer struct {
	sampleRate float64
	features   FeatureFunc

	remaining    int // samples left in the current click burst
	clickLen     int
	lastFraction float64
}

// NewStreamer builds a metronome at the speaker's sample rate.
func NewStreamer(sr beep.SampleRate, features FeatureFunc) *Streamer {
	return &Streamer{
		sampleRate: float64(sr),
		features:   features,
		clickLen:   int(clickDurationSec * float64(sr)),
	}
}

// Stream fills the block, firing a burst whenever the beat fraction wraps.
func (s *Streamer) Stream(samples [][2]float64) (int, bool) {
	beatSec, fraction, ok := s.features()
	if !ok || beatSec <= 0 {
		for i := range samples {
			samples[i][0], samples[i][1] = 0, 0
		}
		s.remaining = 0
		return len(samples), true
	}

	// A wrap between blocks means a beat passed while we were not
	// looking.
	if fraction < s.lastFraction {
		s.remaining = s.clickLen
	}
	s.lastFraction = fraction

	step := 1.0 / (beatSec * s.sampleRate)
	frac := fraction
	for i := range samples {
		frac += step
		if frac >= 1 {
			frac -= 1
			s.remaining = s.clickLen
		}
		v := 0.0
		if s.remaining > 0 {
			n := s.clickLen - s.remaining
			progress := float64(n) / float64(s.clickLen)
			env := 1 - Smoothstep(clickSustain, 1, progress)
			v = clickGain * env * math.Sin(2*math.Pi*clickFreq*float64(n)/s.sampleRate)
			s.remaining--
		}
		samples[i][0], samples[i][1] = v, v
	}
	return len(samples), true
}

// Err reports no error; the metronome cannot fail.
func (s *Streamer) Err() error { return nil }
