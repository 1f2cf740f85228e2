package audio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestCaptureDisabledSession(t *testing.T) {
	r := NewRecorder(NewGuard(), RecorderOptions{})
	_, err := r.Capture(context.Background(), Session{Disabled: true})
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Capture() err = %v, want ErrNoDevice", err)
	}
}

func TestRecorderOptionDefaults(t *testing.T) {
	o := RecorderOptions{}.withDefaults()
	if o.FrameSize != 320 {
		t.Errorf("FrameSize = %d, want 320", o.FrameSize)
	}
	if o.ListenTimeout != 3*time.Second {
		t.Errorf("ListenTimeout = %v, want 3s", o.ListenTimeout)
	}
	if o.MaxUtterance != 8*time.Second {
		t.Errorf("MaxUtterance = %v, want 8s", o.MaxUtterance)
	}
	if o.TrailingSilence != 600*time.Millisecond {
		t.Errorf("TrailingSilence = %v, want 600ms", o.TrailingSilence)
	}
}

func TestFrameRMS(t *testing.T) {
	if got := frameRMS(make([]float32, 320)); got != 0 {
		t.Errorf("frameRMS(silence) = %v, want 0", got)
	}

	frame := make([]float32, 320)
	for i := range frame {
		frame[i] = 0.5
	}
	if got := frameRMS(frame); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("frameRMS(0.5 dc) = %v, want 0.5", got)
	}
}
