package beats

import (
	"fmt"
	"sort"
)

// Boundary tolerance for explicit beat lists, in stereo samples.
const mapEpsilon = 0.5

// BeatMap is a grid backed by an explicit list of beat positions, as
// produced for tracks with drifting tempo. Translation is supported;
// re-tempo is not, since there is no single tempo to set.
type BeatMap struct {
	sampleRate float64
	beats      []float64 // strictly increasing stereo-sample offsets
}

// NewBeatMap builds a grid from explicit beat offsets, which must be
// strictly increasing. The slice is copied.
func NewBeatMap(sampleRate float64, offsets []float64) (*BeatMap, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("beat map: sample rate %v", sampleRate)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return nil, fmt.Errorf("beat map: offsets not strictly increasing at %d", i)
		}
	}
	m := &BeatMap{sampleRate: sampleRate, beats: make([]float64, len(offsets))}
	copy(m.beats, offsets)
	return m, nil
}

// enclosingIndex is the index of the beat at or before pos (within the
// boundary epsilon), or -1 when pos is before the first beat.
func (m *BeatMap) enclosingIndex(pos float64) int {
	return sort.SearchFloat64s(m.beats, pos+mapEpsilon) - 1
}

func (m *BeatMap) PrevNextBeats(pos float64) (prev, next float64, ok bool) {
	i := m.enclosingIndex(pos)
	if i < 0 || i >= len(m.beats)-1 {
		return 0, 0, false
	}
	return m.beats[i], m.beats[i+1], true
}

func (m *BeatMap) NthBeat(pos float64, n int) (float64, bool) {
	if len(m.beats) == 0 {
		return 0, false
	}
	var idx int
	if n > 0 {
		first := sort.SearchFloat64s(m.beats, pos-mapEpsilon)
		idx = first + n - 1
	} else {
		idx = m.enclosingIndex(pos)
		if n < 0 {
			idx += n + 1
		}
	}
	if idx < 0 || idx >= len(m.beats) {
		return 0, false
	}
	return m.beats[idx], true
}

func (m *BeatMap) ClosestBeat(pos float64) (float64, bool) {
	if len(m.beats) == 0 {
		return 0, false
	}
	i := sort.SearchFloat64s(m.beats, pos) // first beat >= pos
	if i == 0 {
		return m.beats[0], true
	}
	if i == len(m.beats) {
		return m.beats[len(m.beats)-1], true
	}
	if m.beats[i]-pos < pos-m.beats[i-1] {
		return m.beats[i], true
	}
	return m.beats[i-1], true
}

func (m *BeatMap) Bpm() float64 {
	n := len(m.beats)
	if n < 2 {
		return 0
	}
	elapsed := m.beats[n-1] - m.beats[0]
	return 60.0 * 2 * m.sampleRate * float64(n-1) / elapsed
}

func (m *BeatMap) BpmAround(pos float64, span int) (float64, bool) {
	base := m.enclosingIndex(pos)
	lo, hi := base-span, base+span
	if lo < 0 || hi >= len(m.beats) {
		return 0, false
	}
	elapsed := m.beats[hi] - m.beats[lo]
	if elapsed <= 0 {
		return 0, false
	}
	return 60.0 * 2 * m.sampleRate * float64(hi-lo) / elapsed, true
}

func (m *BeatMap) Capabilities() Cap {
	return CapTranslate
}

func (m *BeatMap) SetBpm(bpm float64) (Grid, bool) {
	return nil, false
}

func (m *BeatMap) Translate(delta float64) (Grid, bool) {
	next := &BeatMap{sampleRate: m.sampleRate, beats: make([]float64, len(m.beats))}
	for i, b := range m.beats {
		next.beats[i] = b + delta
	}
	return next, true
}
