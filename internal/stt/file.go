package stt

import (
	"context"
	"fmt"
	"path/filepath"

	"gideon/pkg/audioconv"
)

// TranscribeFile decodes an audio file to engine PCM and transcribes
// it. Used by the control socket's transcribe command.
func TranscribeFile(ctx context.Context, eng Engine, path string, rate int) (Utterance, error) {
	if eng == nil {
		return Utterance{}, ErrUnavailable
	}
	pcm, err := audioconv.DecodeFile(path, audioconv.Options{Rate: rate})
	if err != nil {
		return Utterance{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return eng.Transcribe(ctx, pcm)
}
