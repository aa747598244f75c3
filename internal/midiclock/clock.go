// Package midiclock broadcasts the deck's tempo as MIDI timing clock, so
// hardware sequencers and drum machines follow the synced tempo. Standard
// MIDI clock is 24 pulses per quarter note with start/stop transport
// messages around the pulse train.
package midiclock

import (
	"context"
	"fmt"
	"log"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
)

// PulsesPerQuarter is the MIDI clock rate per beat.
const PulsesPerQuarter = 24

// BpmFunc supplies the tempo to broadcast. Re-read on every pulse, so rate
// changes take effect within one pulse.
type BpmFunc func() float64

// Clock emits MIDI timing clock at the tempo reported by its BpmFunc.
type Clock struct {
	bpmFn BpmFunc
	send  func(midi.Message) error
}

// New creates a clock. Connect must succeed before Run emits anything.
func New(bpmFn BpmFunc) *Clock {
	return &Clock{bpmFn: bpmFn}
}

// Connect opens the named MIDI output port, or the first available port
// when name is empty.
func (c *Clock) Connect(portName string) error {
	var out drivers.Out
	if portName != "" {
		port, err := midi.FindOutPort(portName)
		if err != nil {
			return fmt.Errorf("midi out %q: %w", portName, err)
		}
		out = port
	} else {
		outs := midi.GetOutPorts()
		if len(outs) == 0 {
			return fmt.Errorf("no midi output ports available")
		}
		out = outs[0]
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return fmt.Errorf("midi send to %s: %w", out.String(), err)
	}
	c.send = send
	log.Printf("MIDI clock connected to %s", out.String())
	return nil
}

// pulseInterval is the time between clock pulses at the given tempo. A
// stopped or unknown tempo idles at one-second polls without pulsing.
func pulseInterval(bpm float64) time.Duration {
	if bpm <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Minute) / (bpm * PulsesPerQuarter))
}

// Run sends start, then pulses until ctx is cancelled, then stop.
func (c *Clock) Run(ctx context.Context) {
	if c.send == nil {
		return
	}
	if err := c.send(midi.Start()); err != nil {
		log.Printf("MIDI start: %v", err)
	}
	timer := time.NewTimer(pulseInterval(c.bpmFn()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.send(midi.Stop()); err != nil {
				log.Printf("MIDI stop: %v", err)
			}
			return
		case <-timer.C:
			bpm := c.bpmFn()
			if bpm > 0 {
				if err := c.send(midi.TimingClock()); err != nil {
					log.Printf("MIDI clock: %v", err)
				}
			}
			timer.Reset(pulseInterval(bpm))
		}
	}
}
