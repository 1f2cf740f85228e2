package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoDevice reports that no usable capture hardware is available.
	ErrNoDevice = errors.New("no usable capture device")
	// ErrNoSpeech reports that a capture window elapsed without the
	// energy threshold being crossed.
	ErrNoSpeech = errors.New("no speech detected")
)

// Device describes one entry from the hardware scan. Index is the
// device's position in the host enumeration and is only meaningful
// until the next scan.
type Device struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default"`
}

// Session is the outcome of a calibration pass: the chosen device and
// the ambient-derived energy threshold that capture should use. When
// no device could be selected, Disabled is set and the session still
// carries the configured sample rate and the minimum threshold.
type Session struct {
	DeviceIndex     int       `json:"device_index"`
	DeviceName      string    `json:"device_name"`
	SampleRate      int       `json:"sample_rate"`
	EnergyThreshold float64   `json:"energy_threshold"`
	CalibratedAt    time.Time `json:"calibrated_at"`
	Disabled        bool      `json:"disabled"`
}

// Source abstracts the capture hardware for the calibrator: a scan of
// available devices plus a short ambient noise measurement on one of
// them. The production implementation sits on portaudio; tests swap in
// scripted fakes.
type Source interface {
	Devices() ([]Device, error)
	Ambient(ctx context.Context, deviceIndex int, window time.Duration) (float64, error)
}
