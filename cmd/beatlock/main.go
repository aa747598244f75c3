package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/satindergrewal/beatlock/internal/beats"
	"github.com/satindergrewal/beatlock/internal/bpm"
	"github.com/satindergrewal/beatlock/internal/click"
	"github.com/satindergrewal/beatlock/internal/config"
	"github.com/satindergrewal/beatlock/internal/engine"
	"github.com/satindergrewal/beatlock/internal/midiclock"
	"github.com/satindergrewal/beatlock/internal/track"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("beatlock starting up...")

	master := engine.NewBuffer("[Channel1]")
	follower := engine.NewBuffer("[Channel2]")
	session := engine.NewSession(master, follower)

	if err := loadDeck(master, cfg.SampleRate, cfg.MasterBpm); err != nil {
		log.Fatalf("load master deck: %v", err)
	}
	if err := loadDeck(follower, cfg.SampleRate, cfg.FollowerBpm); err != nil {
		log.Fatalf("load follower deck: %v", err)
	}

	master.Controls().SyncMode.Set(float64(bpm.SyncMaster))
	follower.Controls().SyncMode.Set(float64(bpm.SyncFollower))
	if cfg.Quantize {
		master.Controls().Quantize.Set(1)
		follower.Controls().Quantize.Set(1)
	}
	master.Controls().Play.Set(1)
	follower.Controls().Play.Set(1)

	go session.Run(ctx)
	go logSync(ctx, master, follower)

	// MIDI clock out: external gear follows the master's tempo.
	if cfg.MidiClock {
		clock := midiclock.New(master.Bpm)
		if err := clock.Connect(cfg.MidiPort); err != nil {
			log.Printf("MIDI clock disabled: %v", err)
		} else {
			go clock.Run(ctx)
		}
	}

	// Audible metronome locked to the master deck.
	if cfg.Click {
		sr := beep.SampleRate(cfg.SampleRate)
		if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
			log.Printf("click disabled: %v", err)
		} else {
			speaker.Play(click.NewStreamer(sr, func() (float64, float64, bool) {
				var f bpm.Features
				master.Tempo().CollectFeatures(&f)
				if !f.HasBeatLength || !f.HasBeatFraction || master.Speed() == 0 {
					return 0, 0, false
				}
				return f.BeatLengthSec, f.BeatFraction, true
			}))
			log.Println("click track on the master deck")
		}
	}

	// HTTP routes
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"master":     deckStatus(master, cfg.SampleRate),
			"follower":   deckStatus(follower, cfg.SampleRate),
			"sync_error": syncError(master, follower),
		})
	})

	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		mode := bpm.SyncNone
		if req.Enabled {
			mode = bpm.SyncFollower
		}
		follower.Controls().SyncMode.Set(float64(mode))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "enabled": req.Enabled})
	})

	mux.HandleFunc("/api/nudge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Tweak float64 `json:"tweak"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Tweak < -0.5 || req.Tweak > 0.5 {
			http.Error(w, "tweak must be -0.5..0.5", http.StatusBadRequest)
			return
		}
		follower.Nudge(req.Tweak)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "tweak": req.Tweak})
	})

	mux.HandleFunc("/api/beatsync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		follower.Controls().BeatSync.Set(1)
		follower.Controls().BeatSync.Set(0)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("beatlock live on %s (master %.1f BPM, follower %.1f BPM)",
		addr, cfg.MasterBpm, cfg.FollowerBpm)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// loadDeck builds a six-minute track with a fixed grid and loads it.
func loadDeck(b *engine.Buffer, sampleRate int, tempo float64) error {
	totalSamples := float64(sampleRate) * engine.Channels * 60 * 6
	grid, err := beats.NewFixedGrid(float64(sampleRate), tempo, 0, totalSamples)
	if err != nil {
		return err
	}
	trk := track.New(fmt.Sprintf("/music/sim-%s.flac", b.Group()), sampleRate, totalSamples, tempo)
	trk.SetBeats(grid)
	b.LoadTrack(trk)
	log.Printf("Deck %s loaded: %s (%.1f BPM)", b.Group(), trk.ID, tempo)
	return nil
}

func deckStatus(b *engine.Buffer, sampleRate int) map[string]any {
	return map[string]any{
		"group":         b.Group(),
		"bpm":           b.Bpm(),
		"local_bpm":     b.LocalBpm(),
		"beat_distance": b.Controls().BeatDistance.Get(),
		"rate":          b.Speed(),
		"position_sec":  b.Position() / float64(sampleRate) / engine.Channels,
		"sync_mode":     b.Controls().SyncMode.Get(),
	}
}

func syncError(master, follower *engine.Buffer) float64 {
	return bpm.ShortestPercentageChange(
		master.Controls().BeatDistance.Get(),
		follower.Controls().BeatDistance.Get())
}

// logSync reports the follower's phase error once a second.
func logSync(ctx context.Context, master, follower *engine.Buffer) {
	l := follower.Events().Subscribe()
	defer follower.Events().Unsubscribe(l)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last engine.Stats
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-l.C:
			last = st
		case <-ticker.C:
			log.Printf("%s rate=%.4f distance=%.3f error=%+.4f",
				last.Group, last.Rate, last.BeatDistance, syncError(master, follower))
		}
	}
}
