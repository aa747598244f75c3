package bpm

import "time"

// TapFilter is a sliding window over tap timestamps. Each tap drops
// entries older than the max interval, then reports the mean inter-tap
// interval and the window size through the tapped callback. The window is
// a fixed-capacity ring; taps are control-thread input, so the filter is
// not safe for concurrent use.
type TapFilter struct {
	taps        []time.Time
	head, count int
	maxInterval time.Duration
	tapped      func(averageIntervalMillis float64, sampleCount int)
}

// NewTapFilter builds a filter of the given capacity. tapped fires
// synchronously from Tap whenever the window holds at least two samples.
func NewTapFilter(length int, maxInterval time.Duration, tapped func(float64, int)) *TapFilter {
	return &TapFilter{
		taps:        make([]time.Time, length),
		maxInterval: maxInterval,
		tapped:      tapped,
	}
}

// Tap records a tap at the current time.
func (f *TapFilter) Tap() {
	f.TapAt(time.Now())
}

// TapAt records a tap at an explicit time.
func (f *TapFilter) TapAt(now time.Time) {
	// Expire stale taps before inserting.
	for f.count > 0 && now.Sub(f.at(0)) > f.maxInterval {
		f.head = (f.head + 1) % len(f.taps)
		f.count--
	}

	if f.count == len(f.taps) {
		f.head = (f.head + 1) % len(f.taps)
		f.count--
	}
	f.taps[(f.head+f.count)%len(f.taps)] = now
	f.count++

	if f.count < 2 || f.tapped == nil {
		return
	}
	span := f.at(f.count - 1).Sub(f.at(0))
	average := float64(span.Milliseconds()) / float64(f.count-1)
	f.tapped(average, f.count)
}

func (f *TapFilter) at(i int) time.Time {
	return f.taps[(f.head+i)%len(f.taps)]
}
