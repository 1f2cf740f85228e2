package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_engine_init(const char *voice, int wpm)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	if (voice && espeak_SetVoiceByName(voice) != EE_OK)
	{ return -2; }

	if (wpm > 0 && espeak_SetParameter(espeakRATE, wpm, 0) != EE_OK)
	{ return -3; }

	return 0;
}

static int
espeak_engine_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, strlen(text) + 1, 0, 0, 0,
	                 espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }

	espeak_Synchronize();

	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Espeak speaks through the local espeak-ng synthesizer. Speak blocks
// until playback completes.
type Espeak struct {
	mu sync.Mutex
}

// NewEspeak initializes the synthesizer with a voice name ("en",
// "en-us", ...) and a speaking rate in words per minute. Zero wpm
// keeps the engine default.
func NewEspeak(voice string, wpm int) (*Espeak, error) {
	if voice == "" {
		voice = "en"
	}
	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.espeak_engine_init(cvoice, C.int(wpm)); rc != 0 {
		return nil, fmt.Errorf("espeak init failed: %d", int(rc))
	}
	return &Espeak{}, nil
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Synthesis is synchronous and cannot be interrupted once started.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.espeak_engine_say(ctext); rc != 0 {
		return fmt.Errorf("espeak synth failed: %d", int(rc))
	}
	return nil
}

func (e *Espeak) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Terminate()
	return nil
}
