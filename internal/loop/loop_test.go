package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gideon/internal/audio"
	"gideon/internal/respond"
	"gideon/internal/stats"
	"gideon/internal/stt"
	"gideon/internal/wake"
)

// overlap trips when capture and playback are ever active together.
type overlap struct {
	capture  atomic.Bool
	playback atomic.Bool
	violated atomic.Bool
}

func (o *overlap) enterCapture() {
	if o.playback.Load() {
		o.violated.Store(true)
	}
	o.capture.Store(true)
	time.Sleep(time.Millisecond)
}

func (o *overlap) exitCapture() { o.capture.Store(false) }

func (o *overlap) enterPlayback() {
	if o.capture.Load() {
		o.violated.Store(true)
	}
	o.playback.Store(true)
	time.Sleep(time.Millisecond)
}

func (o *overlap) exitPlayback() { o.playback.Store(false) }

type captureStep struct {
	pcm []float32
	err error
}

// fakeRecorder replays scripted captures, then blocks until shutdown.
type fakeRecorder struct {
	mu    sync.Mutex
	steps []captureStep
	det   *overlap
}

func (f *fakeRecorder) Capture(ctx context.Context, _ audio.Session) ([]float32, error) {
	if f.det != nil {
		f.det.enterCapture()
		defer f.det.exitCapture()
	}
	f.mu.Lock()
	if len(f.steps) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	f.mu.Unlock()
	return step.pcm, step.err
}

type fakeCalibrator struct {
	mu        sync.Mutex
	session   audio.Session
	updated   chan struct{}
	failures  int
	successes int
}

func (f *fakeCalibrator) Session() audio.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeCalibrator) NoteFailure(context.Context) {
	f.mu.Lock()
	f.failures++
	f.mu.Unlock()
}

func (f *fakeCalibrator) NoteSuccess() {
	f.mu.Lock()
	f.successes++
	f.mu.Unlock()
}

func (f *fakeCalibrator) Updated() <-chan struct{} { return f.updated }

func (f *fakeCalibrator) failureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

func (f *fakeCalibrator) enable(s audio.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	select {
	case f.updated <- struct{}{}:
	default:
	}
}

type fakeTranscriber struct {
	mu    sync.Mutex
	texts []string
	errs  []error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, []float32) (stt.Utterance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return stt.Utterance{}, f.errs[i]
	}
	if i < len(f.texts) {
		return stt.Utterance{Text: f.texts[i], Confidence: 0.9, CapturedAt: time.Now()}, nil
	}
	return stt.Utterance{}, nil
}

type fakeResponder struct {
	mu     sync.Mutex
	inputs []string
	reply  string
}

func (f *fakeResponder) Respond(_ context.Context, input string) respond.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return respond.Result{Reply: f.reply, Tier: respond.TierLLM}
}

func (f *fakeResponder) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	cues   int
	det    *overlap
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	if f.det != nil {
		f.det.enterPlayback()
		defer f.det.exitPlayback()
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeaker) Cue(context.Context) error {
	f.mu.Lock()
	f.cues++
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeaker) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func (f *fakeSpeaker) cueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cues
}

type fakeFeed struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeFeed) Publish(kind string, _ any) {
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
}

func (f *fakeFeed) seen(kind string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func enabledSession() audio.Session {
	return audio.Session{SampleRate: 16000, EnergyThreshold: 0.01}
}

func newTestLoop(rec *fakeRecorder, tr *fakeTranscriber, opt Options) (*Loop, *fakeCalibrator, *fakeResponder, *fakeSpeaker, *stats.Stats) {
	cal := &fakeCalibrator{session: enabledSession(), updated: make(chan struct{}, 1)}
	resp := &fakeResponder{reply: "noon"}
	spk := &fakeSpeaker{det: rec.det}
	st := stats.New()
	l := New(Deps{
		Recorder:    rec,
		Calibrator:  cal,
		Transcriber: tr,
		Matcher:     wake.NewMatcher(nil, 0),
		Responder:   resp,
		Speaker:     spk,
		Stats:       st,
	}, opt)
	return l, cal, resp, spk, st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunNormalExchange(t *testing.T) {
	rec := &fakeRecorder{steps: []captureStep{{pcm: []float32{0.5}}}}
	tr := &fakeTranscriber{texts: []string{"hey gideon what time is it"}}
	l, _, resp, spk, st := newTestLoop(rec, tr, Options{})
	fd := &fakeFeed{}
	l.feed = fd

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "reply spoken", func() bool { return len(spk.said()) == 1 })
	if got := resp.got(); len(got) != 1 || got[0] != "what time is it" {
		t.Errorf("responder inputs = %v", got)
	}
	if spk.said()[0] != "noon" {
		t.Errorf("spoken = %v", spk.said())
	}

	snap := st.Snapshot()
	if snap.WakeHits != 1 || snap.Recognitions != 1 {
		t.Errorf("wake hits %d, recognitions %d", snap.WakeHits, snap.Recognitions)
	}
	if !fd.seen("exchange") || !fd.seen("state") {
		t.Error("feed missed exchange or state events")
	}

	cancel()
	<-done
	if l.State() != StateShutdown {
		t.Errorf("final state = %v", l.State())
	}
}

func TestRunDiscardsAmbientChatter(t *testing.T) {
	rec := &fakeRecorder{steps: []captureStep{{pcm: []float32{0.5}}}}
	tr := &fakeTranscriber{texts: []string{"the weather is nice today"}}
	l, _, resp, spk, st := newTestLoop(rec, tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "discard counted", func() bool { return st.Snapshot().Discards == 1 })
	if len(resp.got()) != 0 {
		t.Errorf("responder called on ambient chatter: %v", resp.got())
	}
	if len(spk.said()) != 0 {
		t.Errorf("spoke without a command: %v", spk.said())
	}

	cancel()
	<-done
}

func TestRunBareWakeWordCuesAndEngages(t *testing.T) {
	rec := &fakeRecorder{steps: []captureStep{{pcm: []float32{0.1}}, {pcm: []float32{0.2}}}}
	tr := &fakeTranscriber{texts: []string{"hey gideon", "what time is it"}}
	l, _, resp, spk, _ := newTestLoop(rec, tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "follow-up answered", func() bool { return len(resp.got()) == 1 })
	if spk.cueCount() != 1 {
		t.Errorf("cue count = %d", spk.cueCount())
	}
	if resp.got()[0] != "what time is it" {
		t.Errorf("follow-up input = %q", resp.got()[0])
	}

	cancel()
	<-done
}

func TestRunFollowUpWindowExpires(t *testing.T) {
	rec := &fakeRecorder{steps: []captureStep{{pcm: []float32{0.1}}, {pcm: []float32{0.2}}}}
	tr := &fakeTranscriber{texts: []string{"hey gideon what time is it", "and the date"}}
	l, _, resp, _, st := newTestLoop(rec, tr, Options{FollowUpWindow: time.Nanosecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "second utterance discarded", func() bool { return st.Snapshot().Discards == 1 })
	if got := resp.got(); len(got) != 1 {
		t.Errorf("responder inputs = %v", got)
	}

	cancel()
	<-done
}

func TestRunNoSpeechIsSilent(t *testing.T) {
	rec := &fakeRecorder{steps: []captureStep{
		{err: audio.ErrNoSpeech},
		{pcm: []float32{0.5}},
	}}
	tr := &fakeTranscriber{texts: []string{"hey gideon hello"}}
	l, cal, resp, _, st := newTestLoop(rec, tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "exchange after quiet period", func() bool { return len(resp.got()) == 1 })
	if n := cal.failureCount(); n != 0 {
		t.Errorf("quiet room reported as failure %d times", n)
	}
	if st.Snapshot().RecognitionFailures != 0 {
		t.Errorf("recognition failures = %d", st.Snapshot().RecognitionFailures)
	}

	cancel()
	<-done
}

func TestRunTranscriptionFailureNotesCalibrator(t *testing.T) {
	rec := &fakeRecorder{steps: []captureStep{{pcm: []float32{0.5}}}}
	tr := &fakeTranscriber{errs: []error{errors.New("decode failed")}}
	l, cal, resp, _, st := newTestLoop(rec, tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "failure reported", func() bool { return cal.failureCount() == 1 })
	if st.Snapshot().RecognitionFailures != 1 {
		t.Errorf("recognition failures = %d", st.Snapshot().RecognitionFailures)
	}
	if len(resp.got()) != 0 {
		t.Errorf("responder called after failed transcription")
	}

	cancel()
	<-done
}

func TestRunParksWithoutDevice(t *testing.T) {
	rec := &fakeRecorder{}
	tr := &fakeTranscriber{}
	l, cal, _, _, st := newTestLoop(rec, tr, Options{})
	cal.session = audio.Session{Disabled: true, SampleRate: 16000}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "loop parked", func() bool { return l.State() == StateIdle })
	time.Sleep(20 * time.Millisecond)
	if st.Snapshot().Listens != 0 {
		t.Error("loop listened with no device")
	}

	cal.enable(enabledSession())
	waitFor(t, "listening resumed", func() bool { return st.Snapshot().Listens >= 1 })

	cancel()
	<-done
	if l.State() != StateShutdown {
		t.Errorf("final state = %v", l.State())
	}
}

func TestRunShutdownWhileParked(t *testing.T) {
	rec := &fakeRecorder{}
	l, cal, _, _, _ := newTestLoop(rec, &fakeTranscriber{}, Options{})
	cal.session = audio.Session{Disabled: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "loop parked", func() bool { return l.State() == StateIdle })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("parked loop ignored shutdown")
	}
	if l.State() != StateShutdown {
		t.Errorf("final state = %v", l.State())
	}
}

func TestCaptureAndPlaybackNeverOverlap(t *testing.T) {
	det := &overlap{}
	rec := &fakeRecorder{
		det: det,
		steps: []captureStep{
			{pcm: []float32{0.1}}, {pcm: []float32{0.2}}, {pcm: []float32{0.3}},
		},
	}
	tr := &fakeTranscriber{texts: []string{
		"hey gideon hello",
		"hey gideon what time is it",
		"hey gideon thanks",
	}}
	l, _, _, spk, _ := newTestLoop(rec, tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, "three replies", func() bool { return len(spk.said()) == 3 })
	cancel()
	<-done

	if det.violated.Load() {
		t.Fatal("capture and playback were active at the same time")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:         "idle",
		StateListening:    "listening",
		StateTranscribing: "transcribing",
		StateMatching:     "matching",
		StateResponding:   "responding",
		StateSpeaking:     "speaking",
		StateShutdown:     "shutdown",
		State(42):         "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
