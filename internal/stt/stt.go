// Package stt turns captured PCM into text. Two engines are provided:
// a local whisper.cpp model and the hosted transcription API. The loop
// only sees the Engine interface.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that no recognizer is configured or the
// configured one cannot serve.
var ErrUnavailable = errors.New("speech recognition unavailable")

// Utterance is one recognized stretch of speech.
type Utterance struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CapturedAt time.Time `json:"captured_at"`
}

// Engine transcribes mono 16 kHz float32 PCM.
type Engine interface {
	Transcribe(ctx context.Context, pcm []float32) (Utterance, error)
	Close() error
}
