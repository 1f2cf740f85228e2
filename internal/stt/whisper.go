package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Whisper transcribes with a local whisper.cpp model.
type Whisper struct {
	model    whisper.Model
	language string
	threads  int
}

// NewWhisper loads the ggml model at modelPath. Language "auto" lets
// the model detect; threads <= 0 uses every CPU.
func NewWhisper(modelPath, language string, threads int) (*Whisper, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: no model path", ErrUnavailable)
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if language == "" {
		language = "auto"
	}
	return &Whisper{model: m, language: language, threads: threads}, nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

func (w *Whisper) Transcribe(ctx context.Context, pcm []float32) (Utterance, error) {
	if w.model == nil {
		return Utterance{}, ErrUnavailable
	}
	if len(pcm) == 0 {
		return Utterance{}, errors.New("no audio samples")
	}
	captured := time.Now()

	wctx, err := w.model.NewContext()
	if err != nil {
		return Utterance{}, fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return Utterance{}, fmt.Errorf("set language: %w", err)
	}
	threads := w.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return Utterance{}, fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		select {
		case <-ctx.Done():
			return Utterance{}, ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Utterance{}, fmt.Errorf("next segment: %w", err)
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}

	u := Utterance{Text: strings.Join(parts, " "), CapturedAt: captured}
	if u.Text != "" {
		u.Confidence = 1
	}
	return u, nil
}
