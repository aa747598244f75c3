package control

// Deck is the explicit, typed record of observable values for one deck.
// The original design located these behind process-wide string keys; here
// every consumer holds the record directly and subscribes to the fields it
// cares about.
//
// Beat positions are stereo-sample offsets. PrevBeat, NextBeat and
// ClosestBeat hold AbsentBeat when the playhead is outside the grid or no
// grid is loaded.
type Deck struct {
	// Transport and rate parameters.
	Play       *Value
	Reverse    *Value
	Quantize   *Value
	RateSlider *Value // -1..1 slider position
	RateRange  *Value // fraction of rate covered by the slider, e.g. 0.08
	RateDir    *Value // +1 or -1

	// Beat mirrors maintained by the engine each callback.
	PrevBeat    *Value
	NextBeat    *Value
	ClosestBeat *Value

	// Loop state owned by the looping control.
	LoopEnabled *Value
	LoopStart   *Value
	LoopEnd     *Value

	// Published tempo state.
	BeatDistance *Value // fraction of the current beat, minus the user offset
	FileBpm      *Value
	LocalBpm     *Value
	EngineBpm    *Value
	SyncMode     *Value

	// Pushbuttons: momentary, positive edge triggers.
	Tap                          *Value
	BeatSync                     *Value
	BeatSyncPhase                *Value
	BeatSyncTempo                *Value
	AdjustBeatsFaster            *Value
	AdjustBeatsSlower            *Value
	TranslateBeatsEarlier        *Value
	TranslateBeatsLater          *Value
	TranslateBeatsCurpos         *Value
	TranslateBeatsMatchAlignment *Value
}

// AbsentBeat marks a beat mirror with no valid beat.
const AbsentBeat = -1.0

// NewDeck returns a deck record with engine defaults: rate centered, 8%
// rate range, forward direction, no beats.
func NewDeck() *Deck {
	return &Deck{
		Play:       NewValue(0),
		Reverse:    NewValue(0),
		Quantize:   NewValue(0),
		RateSlider: NewValue(0),
		RateRange:  NewValue(0.08),
		RateDir:    NewValue(1),

		PrevBeat:    NewValue(AbsentBeat),
		NextBeat:    NewValue(AbsentBeat),
		ClosestBeat: NewValue(AbsentBeat),

		LoopEnabled: NewValue(0),
		LoopStart:   NewValue(AbsentBeat),
		LoopEnd:     NewValue(AbsentBeat),

		BeatDistance: NewValue(0),
		FileBpm:      NewValue(0),
		LocalBpm:     NewValue(0),
		EngineBpm:    NewValue(0),
		SyncMode:     NewValue(0),

		Tap:                          NewValue(0),
		BeatSync:                     NewValue(0),
		BeatSyncPhase:                NewValue(0),
		BeatSyncTempo:                NewValue(0),
		AdjustBeatsFaster:            NewValue(0),
		AdjustBeatsSlower:            NewValue(0),
		TranslateBeatsEarlier:        NewValue(0),
		TranslateBeatsLater:          NewValue(0),
		TranslateBeatsCurpos:         NewValue(0),
		TranslateBeatsMatchAlignment: NewValue(0),
	}
}
