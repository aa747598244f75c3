package beats

import (
	"fmt"
	"math"
)

// Beat-boundary tolerance, as a fraction of one beat. A position this close
// before a beat counts as being on it.
const gridEpsilon = 0.01

// FixedGrid is a tempo-locked grid: beats at a constant interval from a
// first-beat anchor to the end of the track. Typical for analyzed
// electronic tracks. Supports re-tempo and translation.
type FixedGrid struct {
	sampleRate   float64 // frames per second
	bpm          float64
	firstBeat    float64 // stereo samples
	totalSamples float64
}

// NewFixedGrid builds a constant-tempo grid. sampleRate is in frames per
// second; firstBeat and totalSamples are stereo-sample offsets.
func NewFixedGrid(sampleRate, bpm, firstBeat, totalSamples float64) (*FixedGrid, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("fixed grid: sample rate %v", sampleRate)
	}
	if bpm <= 0 {
		return nil, fmt.Errorf("fixed grid: bpm %v", bpm)
	}
	return &FixedGrid{
		sampleRate:   sampleRate,
		bpm:          bpm,
		firstBeat:    firstBeat,
		totalSamples: totalSamples,
	}, nil
}

// beatLength is the beat interval in stereo samples.
func (g *FixedGrid) beatLength() float64 {
	return 60.0 / g.bpm * g.sampleRate * 2
}

// lastIndex is the index of the final beat that still fits on the track,
// or -1 when not even the first beat does.
func (g *FixedGrid) lastIndex() int {
	if g.totalSamples < g.firstBeat {
		return -1
	}
	return int(math.Floor((g.totalSamples - g.firstBeat) / g.beatLength()))
}

// enclosingIndex is the index of the beat at or before pos, shifted by the
// boundary epsilon. May be out of range.
func (g *FixedGrid) enclosingIndex(pos float64) int {
	return int(math.Floor((pos-g.firstBeat)/g.beatLength() + gridEpsilon))
}

func (g *FixedGrid) beatAt(idx int) float64 {
	return g.firstBeat + float64(idx)*g.beatLength()
}

func (g *FixedGrid) PrevNextBeats(pos float64) (prev, next float64, ok bool) {
	last := g.lastIndex()
	if last < 1 {
		return 0, 0, false
	}
	k := g.enclosingIndex(pos)
	if k < 0 || k >= last {
		return 0, 0, false
	}
	prev = g.beatAt(k)
	return prev, prev + g.beatLength(), true
}

func (g *FixedGrid) NthBeat(pos float64, n int) (float64, bool) {
	last := g.lastIndex()
	if last < 0 {
		return 0, false
	}
	var idx int
	if n > 0 {
		first := int(math.Ceil((pos-g.firstBeat)/g.beatLength() - gridEpsilon))
		idx = first + n - 1
	} else {
		// n == 0 is the enclosing beat's start, n == -1 the same beat,
		// n == -2 the one before it, and so on.
		idx = g.enclosingIndex(pos)
		if n < 0 {
			idx += n + 1
		}
	}
	if idx < 0 || idx > last {
		return 0, false
	}
	return g.beatAt(idx), true
}

func (g *FixedGrid) ClosestBeat(pos float64) (float64, bool) {
	last := g.lastIndex()
	if last < 0 {
		return 0, false
	}
	idx := int(math.Round((pos - g.firstBeat) / g.beatLength()))
	if idx < 0 {
		idx = 0
	}
	if idx > last {
		idx = last
	}
	return g.beatAt(idx), true
}

func (g *FixedGrid) Bpm() float64 {
	return g.bpm
}

func (g *FixedGrid) BpmAround(pos float64, span int) (float64, bool) {
	last := g.lastIndex()
	base := g.enclosingIndex(pos)
	if base-span < 0 || base+span > last {
		return 0, false
	}
	return g.bpm, true
}

func (g *FixedGrid) Capabilities() Cap {
	return CapSetBpm | CapTranslate
}

func (g *FixedGrid) SetBpm(bpm float64) (Grid, bool) {
	if bpm <= 0 {
		return nil, false
	}
	next := *g
	next.bpm = bpm
	return &next, true
}

func (g *FixedGrid) Translate(delta float64) (Grid, bool) {
	next := *g
	next.firstBeat += delta
	return &next, true
}
