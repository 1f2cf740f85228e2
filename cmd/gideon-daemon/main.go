package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"gideon/internal/audio"
	"gideon/internal/config"
	"gideon/internal/feed"
	"gideon/internal/health"
	"gideon/internal/ipc"
	"gideon/internal/loop"
	"gideon/internal/memory"
	"gideon/internal/metrics"
	"gideon/internal/notify"
	"gideon/internal/proxy"
	"gideon/internal/respond"
	"gideon/internal/stats"
	"gideon/internal/stt"
	"gideon/internal/tts"
	"gideon/internal/wake"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	socket := cli.StringP("socket", "s", "", "Control socket path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address")
	metricsAddr := cli.StringP("metrics", "m", "", "Prometheus listen address")
	feedURL := cli.StringP("feed", "f", "", "Status feed hub url")
	whisperModel := cli.StringP("whisper", "w", "", "Local ggml model path")
	cuePath := cli.StringP("cue", "c", "", "Activation chime mp3")
	textOnly := cli.Bool("text-only", false, "Skip audio, serve the control socket only")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg := config.Load()
	override(&cfg.SocketPath, *socket)
	override(&cfg.ProxyAddr, *proxyAddr)
	override(&cfg.MetricsAddr, *metricsAddr)
	override(&cfg.FeedURL, *feedURL)
	override(&cfg.WhisperModel, *whisperModel)
	override(&cfg.CuePath, *cuePath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Audio backend. Losing it degrades to text-only, it never aborts
	// the boot.
	voice := !*textOnly
	if voice {
		if err := audio.Init(); err != nil {
			log.Error("Audio unavailable, running text-only", "err", err)
			voice = false
		} else {
			defer audio.Close()
			log.Debug("Loaded audio backend")
		}
	}

	guard := audio.NewGuard()

	var cal *audio.Calibrator
	if voice {
		cal = audio.NewCalibrator(audio.NewPortAudio(guard, cfg.SampleRate, cfg.FrameSize), audio.Options{
			SampleRate:    cfg.SampleRate,
			AmbientWindow: cfg.AmbientWindow,
			Gain:          cfg.ThresholdGain,
			ThresholdMin:  cfg.ThresholdMin,
			ThresholdMax:  cfg.ThresholdMax,
			Every:         cfg.RecalibrateEvery,
			FailureLimit:  cfg.FailureThreshold,
		})
		session := cal.Calibrate(ctx)
		if session.Disabled {
			log.Warn("No usable capture device yet")
		}
		go cal.Run(ctx)
		log.Debug("Loaded calibrator")
	}

	// Remote API plumbing, shared by LLM, hosted STT and hosted TTS.
	// The model client bounds its own attempts; the shared timeout only
	// has to cover the slowest audio upload.
	httpClient, err := proxy.Client(cfg.ProxyAddr, cfg.STTTimeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.ProxyAddr, "err", err)
		os.Exit(1)
	}

	var llm *respond.LLM
	if cfg.APIKey != "" {
		llm = respond.NewLLM(respond.LLMOptions{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
			Timeout:      cfg.LLMTimeout,
			HTTPClient:   httpClient,
		})
		log.Debug("Loaded model client", "model", cfg.Model)
	} else {
		log.Warn("No API key, replies come from the fallback pool only")
	}

	sttEngine := pickSTT(cfg, httpClient)

	cache := memory.NewCache(cfg.CacheCapacity, cfg.CacheTTL)
	conv := memory.NewConversation(cfg.MemoryCapacity)
	logs, err := memory.NewLogStore(cfg.LogDir)
	if err != nil {
		log.Warn("Conversation log disabled", "dir", cfg.LogDir, "err", err)
	}
	st := stats.New()

	var completer respond.Completer
	if llm != nil {
		completer = llm
	}
	engine := respond.NewEngine(completer, cache, conv, logs, st, respond.EngineOptions{
		ContextTurns: cfg.ContextTurns,
		RetryBudget:  cfg.RetryBudget,
	})

	speaker := buildSpeaker(cfg, guard, httpClient)
	defer speaker.Close()

	fd := feed.New(cfg.FeedURL)
	go fd.Run(ctx)

	var prober health.AudioProber
	if cal != nil {
		prober = cal
	}
	var pinger health.Pinger
	if llm != nil {
		pinger = llm
	}
	monitor := health.New(prober, pinger, engine, cache, conv, health.Options{
		Every:       cfg.ProbeInterval,
		HeapCeiling: uint64(cfg.MemoryCeilingMB) << 20,
		OnProbe:     func(s health.Snapshot) { fd.Publish("health", s) },
	})
	go monitor.Run(ctx)
	log.Debug("Loaded health monitor")

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Error("Metrics listener failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		log.Debug("Loaded metrics listener", "addr", cfg.MetricsAddr)
	}

	d := &daemon{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		cal:     cal,
		stt:     sttEngine,
		engine:  engine,
		speaker: speaker,
		monitor: monitor,
		stats:   st,
	}
	srv, err := ipc.StartServer(cfg.SocketPath, d.dispatch)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	loopDone := make(chan struct{})
	if voice && sttEngine != nil {
		var deps loop.Deps
		deps.Recorder = audio.NewRecorder(guard, audio.RecorderOptions{
			FrameSize:       cfg.FrameSize,
			ListenTimeout:   cfg.ListenTimeout,
			MaxUtterance:    cfg.MaxUtterance,
			TrailingSilence: cfg.TrailingSilence,
		})
		deps.Calibrator = cal
		deps.Transcriber = sttEngine
		deps.Matcher = wake.NewMatcher(cfg.WakeVariants, cfg.WakeThreshold)
		deps.Responder = engine
		deps.Speaker = speaker
		deps.Stats = st
		if fd != nil {
			deps.Feed = fd
		}
		l := loop.New(deps, loop.Options{FollowUpWindow: cfg.FollowUpWindow})
		go func() {
			l.Run(ctx)
			close(loopDone)
		}()
	} else {
		close(loopDone)
		log.Warn("Voice loop off, text commands only")
	}

	log.Info("Boot up - successful")
	<-ctx.Done()

	log.Info("Shutting down")
	select {
	case <-loopDone:
	case <-time.After(5 * time.Second):
		log.Warn("Voice loop slow to stop, leaving it behind")
	}
	srv.Close()
	if closer, ok := sttEngine.(interface{ Close() error }); ok {
		closer.Close()
	}
	logs.Close()
}

// daemon bundles what the control socket commands need.
type daemon struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     config.Config
	cal     *audio.Calibrator
	stt     stt.Engine
	engine  *respond.Engine
	speaker *tts.Speaker
	monitor *health.Monitor
	stats   *stats.Stats
}

func (d *daemon) dispatch(req ipc.Request) ipc.Response {
	log.Debug("Control command", "cmd", req.Cmd)
	switch req.Cmd {
	case "status":
		return jsonData(d.monitor.Status())
	case "stats":
		return jsonData(d.stats.Snapshot())
	case "probe":
		return jsonData(d.monitor.ProbeNow(d.ctx))
	case "recalibrate":
		if d.cal == nil {
			return ipc.Response{Error: "audio disabled"}
		}
		return jsonData(d.cal.Recalibrate(d.ctx, "operator-request"))
	case "ask":
		if req.Text == "" {
			return ipc.Response{Error: "ask needs text"}
		}
		return jsonData(d.engine.Respond(d.ctx, req.Text))
	case "say":
		if req.Text == "" {
			return ipc.Response{Error: "say needs text"}
		}
		if err := d.speaker.Speak(d.ctx, req.Text); err != nil {
			return ipc.Response{Error: err.Error()}
		}
		return ipc.Response{OK: true}
	case "transcribe":
		if req.Path == "" {
			return ipc.Response{Error: "transcribe needs a file path"}
		}
		if d.stt == nil {
			return ipc.Response{Error: "transcription disabled"}
		}
		utt, err := stt.TranscribeFile(d.ctx, d.stt, req.Path, d.cfg.SampleRate)
		if err != nil {
			return ipc.Response{Error: err.Error()}
		}
		return jsonData(utt)
	case "shutdown":
		d.cancel()
		return ipc.Response{OK: true}
	default:
		return ipc.Response{Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func jsonData(v any) ipc.Response {
	data, err := json.Marshal(v)
	if err != nil {
		return ipc.Response{Error: err.Error()}
	}
	return ipc.Response{OK: true, Data: data}
}

// pickSTT chooses the transcription engine: a local whisper model when
// configured, the hosted API when a key is present, otherwise none.
func pickSTT(cfg config.Config, client *http.Client) stt.Engine {
	if cfg.WhisperModel != "" {
		w, err := stt.NewWhisper(cfg.WhisperModel, cfg.Language, 0)
		if err != nil {
			log.Error("Failed to load whisper model", "path", cfg.WhisperModel, "err", err)
		} else {
			log.Debug("Loaded whisper", "model", cfg.WhisperModel)
			return w
		}
	}
	if cfg.APIKey != "" {
		a, err := stt.NewAPI(cfg.APIKey, "", cfg.Language, cfg.SampleRate, client)
		if err != nil {
			log.Error("Failed to build hosted transcription", "err", err)
			return nil
		}
		log.Debug("Loaded hosted transcription")
		return a
	}
	log.Warn("No transcription engine available")
	return nil
}

func buildSpeaker(cfg config.Config, guard *audio.Guard, client *http.Client) *tts.Speaker {
	var sink tts.Sink
	switch cfg.TTSEngine {
	case "api":
		a, err := tts.NewAPI(cfg.APIKey, "", cfg.Voice, 0, client)
		if err != nil {
			log.Error("Hosted speech unavailable, using espeak", "err", err)
		} else {
			sink = a
		}
	case "off":
		sink = tts.Null{}
	}
	if sink == nil {
		e, err := tts.NewEspeak(cfg.Voice, cfg.SpeechWPM)
		if err != nil {
			log.Error("Espeak unavailable, replies go to the log", "err", err)
			sink = tts.Null{}
		} else {
			sink = e
		}
	}

	opt := tts.SpeakerOptions{
		DuckFactor: cfg.DuckFactor,
		Cue:        notify.NewCue(cfg.CuePath),
	}
	if cfg.DuckEnabled {
		opt.Ducker = tts.NewDucker(nil, cfg.DuckMin)
	}
	log.Debug("Loaded speech output", "engine", cfg.TTSEngine)
	return tts.NewSpeaker(guard, sink, opt)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
