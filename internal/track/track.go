// Package track holds the opaque track handle the tempo core consumes:
// identity, sample rate, length, and the current beat grid. The grid
// reference is swapped atomically so the audio callback reads either the
// old grid or the new one, never a torn state.
package track

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/satindergrewal/beatlock/internal/beats"
)

type gridRef struct {
	grid beats.Grid
}

// Track is a loaded track. SampleRate is in frames per second;
// TotalSamples counts interleaved stereo samples. FileBpm is the tempo tag
// stored with the file, the fallback when no grid is available.
type Track struct {
	ID           string
	Path         string
	SampleRate   int
	TotalSamples float64
	FileBpm      float64

	grid atomic.Pointer[gridRef]

	mu       sync.Mutex
	watchers []func()
}

// New creates a track handle with a fresh ID and no beat grid.
func New(path string, sampleRate int, totalSamples, fileBpm float64) *Track {
	t := &Track{
		ID:           uuid.NewString(),
		Path:         path,
		SampleRate:   sampleRate,
		TotalSamples: totalSamples,
		FileBpm:      fileBpm,
	}
	t.grid.Store(&gridRef{})
	return t
}

// Beats returns the current grid, or nil when the track has none.
func (t *Track) Beats() beats.Grid {
	return t.grid.Load().grid
}

// SetBeats publishes a replacement grid and notifies watchers. Called from
// control threads only (analysis finished, grid edited).
func (t *Track) SetBeats(g beats.Grid) {
	t.grid.Store(&gridRef{grid: g})

	t.mu.Lock()
	watchers := make([]func(), len(t.watchers))
	copy(watchers, t.watchers)
	t.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// OnBeatsChanged registers fn to run after every grid replacement.
func (t *Track) OnBeatsChanged(fn func()) {
	t.mu.Lock()
	t.watchers = append(t.watchers, fn)
	t.mu.Unlock()
}
