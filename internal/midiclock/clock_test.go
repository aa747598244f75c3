package midiclock

import (
	"context"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

func TestPulseInterval(t *testing.T) {
	tests := []struct {
		bpm  float64
		want time.Duration
	}{
		{120, time.Minute / (120 * PulsesPerQuarter)}, // ~20.8ms
		{60, time.Minute / (60 * PulsesPerQuarter)},
		{0, time.Second},
		{-5, time.Second},
	}
	for _, tt := range tests {
		if got := pulseInterval(tt.bpm); got != tt.want {
			t.Errorf("pulseInterval(%v) = %v, want %v", tt.bpm, got, tt.want)
		}
	}
}

func TestRunEmitsTransportAndPulses(t *testing.T) {
	var mu sync.Mutex
	var sent []midi.Message

	c := New(func() float64 { return 60000 }) // ~41us pulses
	c.send = func(m midi.Message) error {
		mu.Lock()
		sent = append(sent, m)
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(sent) < 3 {
		t.Fatalf("sent %d messages, want start + pulses + stop", len(sent))
	}
	if sent[0][0] != 0xFA {
		t.Errorf("first message = %#x, want MIDI start (0xFA)", sent[0][0])
	}
	if sent[len(sent)-1][0] != 0xFC {
		t.Errorf("last message = %#x, want MIDI stop (0xFC)", sent[len(sent)-1][0])
	}
	pulses := 0
	for _, m := range sent[1 : len(sent)-1] {
		if m[0] == 0xF8 {
			pulses++
		}
	}
	if pulses == 0 {
		t.Error("no timing clock pulses between start and stop")
	}
}

func TestRunWithoutConnectionIsNoOp(t *testing.T) {
	c := New(func() float64 { return 120 })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx) // must return immediately without panicking
}

func TestStoppedTempoSendsNoPulses(t *testing.T) {
	var mu sync.Mutex
	var sent []midi.Message
	c := New(func() float64 { return 0 })
	c.send = func(m midi.Message) error {
		mu.Lock()
		sent = append(sent, m)
		mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, m := range sent {
		if m[0] == 0xF8 {
			t.Fatal("pulse sent while tempo is zero")
		}
	}
}
