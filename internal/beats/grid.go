// Package beats defines the beat grids the tempo core queries.
//
// A Grid is an immutable view of a track's beat positions. Editing
// operations (SetBpm, Translate) return a new Grid rather than mutating in
// place; the owner publishes the replacement atomically so the audio
// callback always sees a consistent grid. Positions are fractional
// stereo-sample offsets from the start of the track.
//
// Queries near a beat may report that beat as the previous one even when
// the position is a hair before it, so a derived beat fraction can fall
// slightly outside [0, 1). Callers normalize: below zero add one, at or
// above one subtract one.
package beats

// Cap is a grid capability bit.
type Cap uint32

const (
	// CapSetBpm marks grids whose tempo can be re-set as a whole.
	CapSetBpm Cap = 1 << iota
	// CapTranslate marks grids that can be shifted along the track.
	CapTranslate
)

// Grid is the query surface over a track's beats. All positions are stereo
// sample offsets. Queries report ok=false when the grid has no answer:
// empty grid, or position before the first / after the last beat.
type Grid interface {
	// PrevNextBeats returns the beats enclosing pos.
	PrevNextBeats(pos float64) (prev, next float64, ok bool)

	// NthBeat returns the nth beat relative to pos: n > 0 counts forward
	// from the beat at or after pos, n < 0 counts backward from the beat
	// at or before pos, and n == 0 is the enclosing beat's start.
	NthBeat(pos float64, n int) (float64, bool)

	// ClosestBeat returns the beat minimizing the distance to pos.
	ClosestBeat(pos float64) (float64, bool)

	// Bpm returns the grid's global tempo.
	Bpm() float64

	// BpmAround measures the tempo over 2*span beats centered on pos.
	// ok=false when the window would run off either end of the grid.
	BpmAround(pos float64, span int) (float64, bool)

	// Capabilities returns the grid's capability bits.
	Capabilities() Cap

	// SetBpm returns a copy of the grid with its tempo set to bpm.
	// ok=false when the grid cannot re-tempo (capability missing or bpm
	// out of range).
	SetBpm(bpm float64) (Grid, bool)

	// Translate returns a copy of the grid shifted by delta samples.
	Translate(delta float64) (Grid, bool)
}
