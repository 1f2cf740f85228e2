// Package loop drives the capture, transcribe, match, respond, speak
// cycle. One goroutine owns the state machine; the microphone and the
// speaker are exclusive resources, so nothing here runs concurrently
// with itself.
package loop

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync/atomic"
	"time"

	"gideon/internal/audio"
	"gideon/internal/metrics"
	"gideon/internal/respond"
	"gideon/internal/stats"
	"gideon/internal/stt"
	"gideon/internal/wake"
)

// Recorder captures one utterance under the calibrated session.
type Recorder interface {
	Capture(ctx context.Context, s audio.Session) ([]float32, error)
}

// Calibrator supplies the current session and takes failure reports.
type Calibrator interface {
	Session() audio.Session
	NoteFailure(ctx context.Context)
	NoteSuccess()
	Updated() <-chan struct{}
}

// Transcriber turns captured samples into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (stt.Utterance, error)
}

// Matcher gates utterances on the activation phrase.
type Matcher interface {
	Match(text string) (wake.Match, bool)
}

// Responder produces the reply for a command.
type Responder interface {
	Respond(ctx context.Context, input string) respond.Result
}

// Speaker plays replies and the activation cue.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Cue(ctx context.Context) error
}

// Publisher takes loop events for the status feed.
type Publisher interface {
	Publish(kind string, payload any)
}

// Deps collects the loop's collaborators.
type Deps struct {
	Recorder    Recorder
	Calibrator  Calibrator
	Transcriber Transcriber
	Matcher     Matcher
	Responder   Responder
	Speaker     Speaker
	Stats       *stats.Stats
	Feed        Publisher // optional
}

type Options struct {
	FollowUpWindow time.Duration // wake gating stays open this long after an exchange
}

// Loop is the voice-interaction state machine.
type Loop struct {
	rec   Recorder
	cal   Calibrator
	stt   Transcriber
	match Matcher
	eng   Responder
	spk   Speaker
	stats *stats.Stats
	feed  Publisher
	opt   Options

	state atomic.Int32

	// Touched only by the loop goroutine.
	engagedUntil time.Time
	now          func() time.Time
}

func New(d Deps, opt Options) *Loop {
	const defaultFollowUp = 8 * time.Second
	if opt.FollowUpWindow <= 0 {
		opt.FollowUpWindow = defaultFollowUp
	}
	l := &Loop{
		rec:   d.Recorder,
		cal:   d.Calibrator,
		stt:   d.Transcriber,
		match: d.Matcher,
		eng:   d.Responder,
		spk:   d.Speaker,
		stats: d.Stats,
		feed:  d.Feed,
		opt:   opt,
		now:   time.Now,
	}
	l.state.Store(int32(StateIdle))
	return l
}

// State returns the loop's current phase.
func (l *Loop) State() State { return State(l.state.Load()) }

// Run cycles until ctx is done, then lands in StateShutdown. A disabled
// session parks the loop until recalibration produces a device; the
// text path stays live through IPC while parked.
func (l *Loop) Run(ctx context.Context) {
	defer l.setState(StateShutdown)

	for {
		if ctx.Err() != nil {
			return
		}
		l.setState(StateIdle)

		session := l.cal.Session()
		if session.Disabled {
			if !l.park(ctx) {
				return
			}
			continue
		}

		l.cycle(ctx, session)
	}
}

// park blocks until a calibration update or shutdown. Reports whether
// the loop should keep running.
func (l *Loop) park(ctx context.Context) bool {
	log.Warn("No capture device, voice loop parked")
	select {
	case <-ctx.Done():
		return false
	case <-l.cal.Updated():
		return true
	}
}

// cycle runs one pass of the state machine. Every early return drops
// the partial utterance and brings the loop back to idle.
func (l *Loop) cycle(ctx context.Context, session audio.Session) {
	l.setState(StateListening)
	l.stats.Listen()
	pcm, err := l.rec.Capture(ctx, session)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, audio.ErrNoSpeech):
		// Quiet room. Not an error.
		return
	default:
		log.Warn("Capture failed", "err", err)
		l.stats.RecognitionFailure()
		l.cal.NoteFailure(ctx)
		return
	}

	l.setState(StateTranscribing)
	utt, err := l.stt.Transcribe(ctx, pcm)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("Transcription failed", "err", err)
			l.stats.RecognitionFailure()
			l.cal.NoteFailure(ctx)
		}
		return
	}
	l.cal.NoteSuccess()

	text := strings.TrimSpace(utt.Text)
	if text == "" {
		return
	}
	l.stats.Recognition()
	log.Info("Heard", "text", text, "confidence", utt.Confidence)

	l.setState(StateMatching)
	command, ok := l.gate(text)
	if !ok {
		l.stats.Discard()
		log.Debug("Discarded ambient speech", "text", text)
		return
	}
	if command == "" {
		// Bare wake word: acknowledge and keep listening engaged.
		if err := l.spk.Cue(ctx); err != nil {
			log.Debug("Cue failed", "err", err)
		}
		l.engage()
		return
	}

	l.setState(StateResponding)
	res := l.eng.Respond(ctx, command)

	l.setState(StateSpeaking)
	if err := l.spk.Speak(ctx, res.Reply); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("Speech output failed", "err", err)
	}
	l.engage()

	if l.feed != nil {
		l.feed.Publish("exchange", map[string]any{
			"input": command,
			"reply": res.Reply,
			"tier":  string(res.Tier),
		})
		l.feed.Publish("stats", l.stats.Snapshot())
	}
}

// gate applies wake-word gating. Inside the follow-up window the whole
// utterance is the command; otherwise the activation phrase must be
// present and the command is what follows it.
func (l *Loop) gate(text string) (string, bool) {
	if l.now().Before(l.engagedUntil) {
		return text, true
	}
	m, ok := l.match.Match(text)
	if !ok {
		return "", false
	}
	l.stats.WakeHit()
	log.Info("Wake word", "variant", m.Variant, "score", m.Score)
	return strings.TrimSpace(m.Remainder), true
}

func (l *Loop) engage() {
	l.engagedUntil = l.now().Add(l.opt.FollowUpWindow)
}

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	metrics.LoopState.Set(float64(s))
	log.Debug("Loop state", "state", s.String())
	if l.feed != nil {
		l.feed.Publish("state", s.String())
	}
}
