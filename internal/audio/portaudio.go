package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudio is the hardware-backed Source. Every stream it opens is
// serialized through the guard so ambient sampling never overlaps a
// live capture or playback.
type PortAudio struct {
	guard      *Guard
	sampleRate int
	frameSize  int
}

func NewPortAudio(guard *Guard, sampleRate, frameSize int) *PortAudio {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if frameSize <= 0 {
		frameSize = 320
	}
	return &PortAudio{guard: guard, sampleRate: sampleRate, frameSize: frameSize}
}

// Devices lists every host device. Index is the position in the host
// table; callers filter for input capability themselves.
func (p *PortAudio) Devices() ([]Device, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	out := make([]Device, 0, len(devs))
	for i, d := range devs {
		out = append(out, Device{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         def != nil && (d == def || d.Name == def.Name),
		})
	}
	return out, nil
}

// Ambient opens the device for the given window and returns the mean
// frame RMS heard over it.
func (p *PortAudio) Ambient(ctx context.Context, deviceIndex int, window time.Duration) (float64, error) {
	p.guard.Lock()
	defer p.guard.Unlock()

	devs, err := portaudio.Devices()
	if err != nil {
		return 0, fmt.Errorf("enumerate devices: %w", err)
	}
	if deviceIndex < 0 || deviceIndex >= len(devs) {
		return 0, ErrNoDevice
	}
	dev := devs[deviceIndex]

	buf := make([]float32, p.frameSize)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(p.sampleRate),
		FramesPerBuffer: len(buf),
	}, buf)
	if err != nil {
		return 0, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return 0, fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	var sum float64
	var frames int
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if err := stream.Read(); err != nil {
			return 0, fmt.Errorf("read frame: %w", err)
		}
		sum += frameRMS(buf)
		frames++
	}
	if frames == 0 {
		return 0, nil
	}
	return sum / float64(frames), nil
}
