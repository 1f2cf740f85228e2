// Package notify plays the short acknowledgement cue heard when the
// wake word arrives with no command attached.
package notify

import (
	"context"
	"math"
	"os"
	"time"

	log "log/slog"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Cue plays an MP3 file when one is configured, falling back to a
// short generated tone.
type Cue struct {
	path string
}

func NewCue(path string) *Cue { return &Cue{path: path} }

// Play blocks until the cue finishes or the context ends.
func (c *Cue) Play(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.path != "" {
		err := c.playFile(ctx)
		if err == nil {
			return nil
		}
		log.Debug("Cue file playback failed, using tone", "path", c.path, "err", err)
	}
	return playTone(ctx)
}

func (c *Cue) playFile(ctx context.Context) error {
	f, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer f.Close()

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return err
	}

	done := make(chan bool, 1)
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		done <- true
	})))

	select {
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	case <-done:
		return nil
	}
}

// playTone synthesizes 150ms of a soft A5 sine.
func playTone(ctx context.Context) error {
	const (
		freq = 880.0
		gain = 0.2
	)
	sr := beep.SampleRate(44100)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return err
	}

	var phase float64
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := gain * math.Sin(2*math.Pi*phase)
			samples[i][0], samples[i][1] = v, v
			phase += freq / float64(sr)
		}
		return len(samples), true
	})

	done := make(chan bool, 1)
	speaker.Play(beep.Seq(beep.Take(sr.N(150*time.Millisecond), tone), beep.Callback(func() {
		done <- true
	})))

	select {
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	case <-done:
		return nil
	}
}
