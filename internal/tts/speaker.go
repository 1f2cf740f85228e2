package tts

import (
	"context"
	"time"

	log "log/slog"

	"gideon/internal/audio"
	"gideon/internal/notify"
)

// SpeakerOptions wires the optional output extras.
type SpeakerOptions struct {
	Ducker     *Ducker
	DuckFactor float64       // foreign volume multiplier while speaking
	DuckFade   time.Duration // fade length for duck and restore
	Cue        *notify.Cue
}

// Speaker owns the output side of the engine. It serializes playback
// against capture through the shared guard, ducks other system audio
// for the duration of a reply, and plays the wake acknowledgement cue.
type Speaker struct {
	guard *audio.Guard
	sink  Sink
	opt   SpeakerOptions
}

func NewSpeaker(guard *audio.Guard, sink Sink, opt SpeakerOptions) *Speaker {
	if opt.DuckFactor <= 0 || opt.DuckFactor >= 1 {
		opt.DuckFactor = 0.3
	}
	if opt.DuckFade <= 0 {
		opt.DuckFade = 200 * time.Millisecond
	}
	return &Speaker{guard: guard, sink: sink, opt: opt}
}

// Speak plays one reply, holding the guard so capture cannot overlap.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	s.guard.Lock()
	defer s.guard.Unlock()

	if s.opt.Ducker != nil {
		if err := s.opt.Ducker.Duck(ctx, s.opt.DuckFactor, s.opt.DuckFade); err != nil {
			log.Debug("Duck failed", "err", err)
		}
		defer func() {
			// Restore even when playback was cancelled.
			if err := s.opt.Ducker.Restore(context.Background(), s.opt.DuckFade); err != nil {
				log.Debug("Restore failed", "err", err)
			}
		}()
	}

	return s.sink.Speak(ctx, text)
}

// Cue plays the wake acknowledgement under the guard.
func (s *Speaker) Cue(ctx context.Context) error {
	if s.opt.Cue == nil {
		return nil
	}
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.opt.Cue.Play(ctx)
}

func (s *Speaker) Close() error {
	return s.sink.Close()
}
