// Package control provides the observable values a deck shares between its
// audio callback and the control threads.
//
// A Value is a single float64 stored atomically, so the audio thread can
// read and write it without taking a lock. Subscribers registered on a
// Value are invoked synchronously on the writer's goroutine; setting a
// Value to the value it already holds does not notify. That suppression is
// what lets the engine-bpm and rate-slider values subscribe to each other
// without recursing forever.
package control

import (
	"math"
	"sync/atomic"
)

// Value is an atomic float64 with change-notification callbacks.
type Value struct {
	bits atomic.Uint64
	subs atomic.Pointer[[]func(float64)]
}

// NewValue returns a Value holding initial.
func NewValue(initial float64) *Value {
	v := &Value{}
	v.bits.Store(math.Float64bits(initial))
	return v
}

// Get returns the current value.
func (v *Value) Get() float64 {
	return math.Float64frombits(v.bits.Load())
}

// Bool reports whether the value is positive. Pushbuttons and toggles are
// stored as doubles, matching the rest of the record.
func (v *Value) Bool() bool {
	return v.Get() > 0
}

// Set stores x and notifies subscribers. Storing the value already held is
// a no-op and does not notify.
func (v *Value) Set(x float64) {
	bits := math.Float64bits(x)
	if v.bits.Swap(bits) == bits {
		return
	}
	if subs := v.subs.Load(); subs != nil {
		for _, fn := range *subs {
			fn(x)
		}
	}
}

// Subscribe registers fn to be called on every change. The subscriber list
// is copy-on-write so the audio thread can walk it without locking.
func (v *Value) Subscribe(fn func(float64)) {
	for {
		old := v.subs.Load()
		var next []func(float64)
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, fn)
		if v.subs.CompareAndSwap(old, &next) {
			return
		}
	}
}
