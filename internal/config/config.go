package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "log/slog"
)

// Config is built once at startup and handed to every component by value.
// Nothing reads the environment after Load returns.
type Config struct {
	// Remote language model.
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64
	ProxyAddr    string // socks5 host:port, empty = direct
	LLMTimeout   time.Duration
	RetryBudget  int
	ContextTurns int

	// Speech to text.
	WhisperModel string // ggml model path, empty = API transcription
	Language     string
	STTTimeout   time.Duration

	// Speech output.
	TTSEngine string // "espeak", "api" or "off"
	Voice     string
	SpeechWPM int
	CuePath   string // activation chime mp3, empty = synthesized tone

	// Ducking of other desktop audio streams while speaking.
	DuckEnabled bool
	DuckFactor  float64
	DuckMin     int

	// Capture and calibration.
	SampleRate       int
	FrameSize        int
	ListenTimeout    time.Duration
	MaxUtterance     time.Duration
	TrailingSilence  time.Duration
	AmbientWindow    time.Duration
	RecalibrateEvery time.Duration
	FailureThreshold int
	ThresholdGain    float64
	ThresholdMin     float64
	ThresholdMax     float64

	// Wake word gating.
	WakeVariants   []string
	WakeThreshold  float64
	FollowUpWindow time.Duration

	// Bounded stores.
	CacheCapacity  int
	CacheTTL       time.Duration
	MemoryCapacity int

	// Health supervision.
	ProbeInterval   time.Duration
	MemoryCeilingMB int

	// Surfaces.
	SocketPath  string
	FeedURL     string
	MetricsAddr string // prometheus listen address, empty = off
	LogDir      string // conversation JSONL directory, empty = off
}

// Default returns the tuning the daemon ships with.
func Default() Config {
	return Config{
		Model:        "gpt-5-nano",
		SystemPrompt: "You are Gideon, a helpful AI assistant. Be concise and friendly.",
		MaxTokens:    150,
		Temperature:  0.7,
		LLMTimeout:   8 * time.Second,
		RetryBudget:  1,
		ContextTurns: 10,

		Language:   "en",
		STTTimeout: 60 * time.Second,

		TTSEngine: "espeak",
		Voice:     "en",
		SpeechWPM: 180,

		DuckFactor: 0.35,
		DuckMin:    10,

		SampleRate:       16000,
		FrameSize:        320, // 20ms
		ListenTimeout:    3 * time.Second,
		MaxUtterance:     8 * time.Second,
		TrailingSilence:  600 * time.Millisecond,
		AmbientWindow:    300 * time.Millisecond,
		RecalibrateEvery: 60 * time.Second,
		FailureThreshold: 3,
		ThresholdGain:    4.0,
		ThresholdMin:     0.005,
		ThresholdMax:     0.25,

		WakeThreshold:  0.75,
		FollowUpWindow: 8 * time.Second,

		CacheCapacity:  50,
		CacheTTL:       0,
		MemoryCapacity: 10,

		ProbeInterval:   30 * time.Second,
		MemoryCeilingMB: 256,

		SocketPath: "/tmp/gideon.sock",
	}
}

// Load builds a Config from GIDEON_* environment variables on top of the
// defaults. Malformed numeric values keep the default and log a warning
// rather than failing the boot.
func Load() Config {
	cfg := Default()

	cfg.APIKey = os.Getenv("GIDEON_OPENAI_KEY")
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	str(&cfg.Model, "GIDEON_MODEL")
	str(&cfg.SystemPrompt, "GIDEON_SYSTEM_PROMPT")
	str(&cfg.ProxyAddr, "GIDEON_PROXY")
	str(&cfg.WhisperModel, "GIDEON_WHISPER_MODEL")
	str(&cfg.Language, "GIDEON_LANGUAGE")
	str(&cfg.TTSEngine, "GIDEON_TTS")
	str(&cfg.Voice, "GIDEON_VOICE")
	str(&cfg.CuePath, "GIDEON_CUE")
	str(&cfg.SocketPath, "GIDEON_SOCKET")
	str(&cfg.FeedURL, "GIDEON_FEED_URL")
	str(&cfg.MetricsAddr, "GIDEON_METRICS_ADDR")
	str(&cfg.LogDir, "GIDEON_LOG_DIR")
	list(&cfg.WakeVariants, "GIDEON_WAKE_VARIANTS")

	cfg.DuckEnabled = os.Getenv("GIDEON_DUCK") == "1"

	num(&cfg.SpeechWPM, "GIDEON_SPEECH_WPM")
	num(&cfg.MemoryCeilingMB, "GIDEON_MEMORY_CEILING_MB")
	num(&cfg.CacheCapacity, "GIDEON_CACHE_CAPACITY")
	num(&cfg.MemoryCapacity, "GIDEON_MEMORY_CAPACITY")
	flt(&cfg.WakeThreshold, "GIDEON_WAKE_THRESHOLD")
	dur(&cfg.CacheTTL, "GIDEON_CACHE_TTL")
	dur(&cfg.LLMTimeout, "GIDEON_LLM_TIMEOUT")
	dur(&cfg.FollowUpWindow, "GIDEON_FOLLOWUP_WINDOW")

	return cfg
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func list(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		*dst = items
	}
}

func num(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("Ignoring malformed setting", "key", key, "value", v)
		return
	}
	*dst = n
}

func flt(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("Ignoring malformed setting", "key", key, "value", v)
		return
	}
	*dst = f
}

func dur(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("Ignoring malformed setting", "key", key, "value", v)
		return
	}
	*dst = d
}
