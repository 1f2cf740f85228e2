package audio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeSource struct {
	devices []Device
	scanErr error
	ambient map[int]float64
	ambErr  map[int]error
	scans   int
}

func (f *fakeSource) Devices() ([]Device, error) {
	f.scans++
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.devices, nil
}

func (f *fakeSource) Ambient(_ context.Context, deviceIndex int, _ time.Duration) (float64, error) {
	if err := f.ambErr[deviceIndex]; err != nil {
		return 0, err
	}
	return f.ambient[deviceIndex], nil
}

func TestCalibrateNoDevices(t *testing.T) {
	cal := NewCalibrator(&fakeSource{}, Options{})
	s := cal.Calibrate(context.Background())

	if !s.Disabled {
		t.Fatal("expected disabled session with no devices")
	}
	if s.SampleRate != defaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", s.SampleRate, defaultSampleRate)
	}
	if s.EnergyThreshold != defaultThresholdMin {
		t.Errorf("EnergyThreshold = %v, want minimum %v", s.EnergyThreshold, defaultThresholdMin)
	}
}

func TestCalibrateScanError(t *testing.T) {
	cal := NewCalibrator(&fakeSource{scanErr: errors.New("host gone")}, Options{})
	if s := cal.Calibrate(context.Background()); !s.Disabled {
		t.Fatal("expected disabled session when the scan fails")
	}
}

func TestCalibratePrefersDefaultAndQuiet(t *testing.T) {
	src := &fakeSource{
		devices: []Device{
			{Index: 0, Name: "noisy usb", MaxInputChannels: 2},
			{Index: 1, Name: "builtin", MaxInputChannels: 2, IsDefault: true},
		},
		ambient: map[int]float64{0: 0.2, 1: 0.01},
	}
	cal := NewCalibrator(src, Options{})
	s := cal.Calibrate(context.Background())

	if s.Disabled {
		t.Fatal("unexpected disabled session")
	}
	if s.DeviceIndex != 1 || s.DeviceName != "builtin" {
		t.Errorf("picked device %d %q, want 1 builtin", s.DeviceIndex, s.DeviceName)
	}
	if math.Abs(s.EnergyThreshold-0.04) > 1e-9 {
		t.Errorf("EnergyThreshold = %v, want 0.04", s.EnergyThreshold)
	}
}

func TestCalibrateSkipsFailingDevice(t *testing.T) {
	src := &fakeSource{
		devices: []Device{
			{Index: 0, Name: "broken", MaxInputChannels: 8, IsDefault: true},
			{Index: 1, Name: "spare", MaxInputChannels: 1},
		},
		ambient: map[int]float64{1: 0.02},
		ambErr:  map[int]error{0: errors.New("device busy")},
	}
	cal := NewCalibrator(src, Options{})
	s := cal.Calibrate(context.Background())

	if s.Disabled {
		t.Fatal("unexpected disabled session")
	}
	if s.DeviceName != "spare" {
		t.Errorf("picked %q, want spare", s.DeviceName)
	}
}

func TestCalibrateIgnoresOutputOnlyDevices(t *testing.T) {
	src := &fakeSource{
		devices: []Device{
			{Index: 0, Name: "speakers", MaxInputChannels: 0, IsDefault: true},
			{Index: 1, Name: "mic", MaxInputChannels: 1},
		},
		ambient: map[int]float64{1: 0.01},
	}
	cal := NewCalibrator(src, Options{})
	if s := cal.Calibrate(context.Background()); s.DeviceName != "mic" {
		t.Errorf("picked %q, want mic", s.DeviceName)
	}
}

func TestThresholdClamping(t *testing.T) {
	cases := []struct {
		ambient float64
		want    float64
	}{
		{0.5, defaultThresholdMax},    // 4 * 0.5 clamps high
		{0.0001, defaultThresholdMin}, // 4 * 0.0001 clamps low
		{0.02, 0.08},
	}
	for _, tc := range cases {
		src := &fakeSource{
			devices: []Device{{Index: 0, Name: "mic", MaxInputChannels: 1}},
			ambient: map[int]float64{0: tc.ambient},
		}
		s := NewCalibrator(src, Options{}).Calibrate(context.Background())
		if math.Abs(s.EnergyThreshold-tc.want) > 1e-9 {
			t.Errorf("ambient %v: threshold = %v, want %v", tc.ambient, s.EnergyThreshold, tc.want)
		}
	}
}

func TestNoteFailureTriggersRecalibration(t *testing.T) {
	src := &fakeSource{
		devices: []Device{{Index: 0, Name: "mic", MaxInputChannels: 1}},
		ambient: map[int]float64{0: 0.01},
	}
	cal := NewCalibrator(src, Options{FailureLimit: 3})
	ctx := context.Background()
	cal.Calibrate(ctx)

	cal.NoteFailure(ctx)
	cal.NoteFailure(ctx)
	if src.scans != 1 {
		t.Fatalf("recalibrated after %d failures, scans = %d", 2, src.scans)
	}
	cal.NoteFailure(ctx)
	if src.scans != 2 {
		t.Fatalf("third failure should recalibrate, scans = %d", src.scans)
	}

	// The streak resets after the forced pass.
	cal.NoteFailure(ctx)
	cal.NoteFailure(ctx)
	if src.scans != 2 {
		t.Errorf("streak did not reset, scans = %d", src.scans)
	}
}

func TestNoteSuccessResetsStreak(t *testing.T) {
	src := &fakeSource{
		devices: []Device{{Index: 0, Name: "mic", MaxInputChannels: 1}},
		ambient: map[int]float64{0: 0.01},
	}
	cal := NewCalibrator(src, Options{FailureLimit: 3})
	ctx := context.Background()
	cal.Calibrate(ctx)

	cal.NoteFailure(ctx)
	cal.NoteFailure(ctx)
	cal.NoteSuccess()
	cal.NoteFailure(ctx)
	cal.NoteFailure(ctx)

	if src.scans != 1 {
		t.Errorf("recalibrated despite reset streak, scans = %d", src.scans)
	}
}

func TestRecalibrateRestoresAudio(t *testing.T) {
	src := &fakeSource{}
	cal := NewCalibrator(src, Options{})
	ctx := context.Background()

	if s := cal.Calibrate(ctx); !s.Disabled {
		t.Fatal("expected disabled session first")
	}

	src.devices = []Device{{Index: 0, Name: "mic", MaxInputChannels: 1}}
	src.ambient = map[int]float64{0: 0.01}

	if s := cal.Recalibrate(ctx, "device plugged in"); s.Disabled {
		t.Fatal("expected recalibration to restore audio")
	}
	if cal.Session().Disabled {
		t.Error("stored session still disabled")
	}
}

func TestUpdatedSignalsAfterCalibrate(t *testing.T) {
	src := &fakeSource{}
	cal := NewCalibrator(src, Options{})
	cal.Calibrate(context.Background())

	select {
	case <-cal.Updated():
	default:
		t.Fatal("expected a pending update signal")
	}
}

func TestProbeDevice(t *testing.T) {
	src := &fakeSource{
		devices: []Device{{Index: 0, Name: "mic", MaxInputChannels: 1}},
	}
	cal := NewCalibrator(src, Options{})
	if err := cal.ProbeDevice(); err != nil {
		t.Errorf("ProbeDevice() = %v, want nil", err)
	}

	src.devices = []Device{{Index: 0, Name: "speakers", MaxInputChannels: 0}}
	if err := cal.ProbeDevice(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("ProbeDevice() = %v, want ErrNoDevice", err)
	}

	src.scanErr = errors.New("host gone")
	if err := cal.ProbeDevice(); err == nil {
		t.Error("ProbeDevice() = nil, want scan error")
	}
}
