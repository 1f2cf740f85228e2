// Package tts speaks replies. Sinks synthesize and play one line of
// text; the Speaker wraps a sink with the capture guard, the wake cue,
// and volume ducking.
package tts

import (
	"context"

	log "log/slog"
)

// Sink synthesizes text and plays it to completion.
type Sink interface {
	Speak(ctx context.Context, text string) error
	Close() error
}

// Null is the text-only sink: replies land in the log instead of the
// speakers. Used when synthesis is disabled or unavailable.
type Null struct{}

func (Null) Speak(_ context.Context, text string) error {
	log.Info("Reply (text only)", "text", text)
	return nil
}

func (Null) Close() error { return nil }
