package audio

import (
	"context"
	"fmt"
	"math"
	"time"

	log "log/slog"

	"github.com/gordonklaus/portaudio"
)

// Init readies the capture stack. Call Close when the process exits.
func Init() error {
	return portaudio.Initialize()
}

func Close() {
	portaudio.Terminate()
}

// RecorderOptions tunes utterance segmentation.
type RecorderOptions struct {
	FrameSize       int           // samples per read, 320 = 20ms at 16k
	ListenTimeout   time.Duration // how long to wait for speech to start
	MaxUtterance    time.Duration // hard cap on a single utterance
	TrailingSilence time.Duration // quiet run that ends an utterance
}

func (o RecorderOptions) withDefaults() RecorderOptions {
	if o.FrameSize <= 0 {
		o.FrameSize = 320
	}
	if o.ListenTimeout <= 0 {
		o.ListenTimeout = 3 * time.Second
	}
	if o.MaxUtterance <= 0 {
		o.MaxUtterance = 8 * time.Second
	}
	if o.TrailingSilence <= 0 {
		o.TrailingSilence = 600 * time.Millisecond
	}
	return o
}

// Recorder captures single utterances from the session's device,
// holding the guard for the whole capture so playback never overlaps.
type Recorder struct {
	guard *Guard
	opt   RecorderOptions
}

func NewRecorder(guard *Guard, opt RecorderOptions) *Recorder {
	return &Recorder{guard: guard, opt: opt.withDefaults()}
}

// Capture waits for the session's energy threshold to be crossed, then
// records until trailing silence or the utterance cap. It returns
// ErrNoSpeech when the listen window expires quietly and ErrNoDevice
// when the session is disabled.
func (r *Recorder) Capture(ctx context.Context, s Session) ([]float32, error) {
	if s.Disabled {
		return nil, ErrNoDevice
	}

	r.guard.Lock()
	defer r.guard.Unlock()

	buf := make([]float32, r.opt.FrameSize)
	stream, err := r.openStream(s, buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	frameDur := time.Duration(r.opt.FrameSize) * time.Second / time.Duration(s.SampleRate)
	silenceLimit := int(r.opt.TrailingSilence / frameDur)
	if silenceLimit < 1 {
		silenceLimit = 1
	}

	out := make([]float32, 0, s.SampleRate*3)
	var (
		speaking      bool
		silenceFrames int
		waited        time.Duration
		voiced        time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}

		loud := frameRMS(buf) >= s.EnergyThreshold

		if !speaking {
			if loud {
				speaking = true
				out = append(out, buf...)
				continue
			}
			waited += frameDur
			if waited >= r.opt.ListenTimeout {
				return nil, ErrNoSpeech
			}
			continue
		}

		out = append(out, buf...)
		voiced += frameDur
		if loud {
			silenceFrames = 0
		} else {
			silenceFrames++
			if silenceFrames >= silenceLimit {
				break
			}
		}
		if voiced >= r.opt.MaxUtterance {
			log.Debug("Utterance hit length cap")
			break
		}
	}

	return out, nil
}

// openStream opens the calibrated device, falling back to the host
// default when the index is stale or the device refuses.
func (r *Recorder) openStream(s Session, buf []float32) (*portaudio.Stream, error) {
	if devs, err := portaudio.Devices(); err == nil && s.DeviceIndex >= 0 && s.DeviceIndex < len(devs) {
		dev := devs[s.DeviceIndex]
		stream, err := portaudio.OpenStream(portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: 1,
				Latency:  dev.DefaultLowInputLatency,
			},
			SampleRate:      float64(s.SampleRate),
			FramesPerBuffer: len(buf),
		}, buf)
		if err == nil {
			return stream, nil
		}
		log.Warn("Calibrated device refused stream, using default", "device", dev.Name, "err", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return stream, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
