package respond

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "log/slog"

	"gideon/internal/memory"
	"gideon/internal/stats"
)

// Tier labels where a reply came from.
type Tier string

const (
	TierCache    Tier = "cache"
	TierLLM      Tier = "llm"
	TierFallback Tier = "fallback"
)

// Result is one produced reply plus its provenance.
type Result struct {
	Reply    string        `json:"reply"`
	Tier     Tier          `json:"tier"`
	Category Category      `json:"category,omitempty"` // set on fallback replies
	Latency  time.Duration `json:"latency"`
}

// Completer is the model behind the middle tier.
type Completer interface {
	Complete(ctx context.Context, turns []memory.Turn, user string) (string, error)
}

// EngineOptions tunes the tier walk.
type EngineOptions struct {
	ContextTurns int              // turns of history handed to the model
	RetryBudget  int              // extra attempts after the first, transient errors only
	Transient    func(error) bool // defaults to Transient
}

// Engine answers one input at a time: cache first, then the model with
// a bounded retry, then canned fallbacks. Every completed exchange is
// appended to the conversation window and the log store, whichever
// tier produced it.
type Engine struct {
	llm      Completer // nil when no model is configured
	fallback *Fallback
	cache    *memory.Cache
	conv     *memory.Conversation
	logs     *memory.LogStore
	stats    *stats.Stats
	opt      EngineOptions

	mu    sync.Mutex
	short atomic.Bool
}

func NewEngine(llm Completer, cache *memory.Cache, conv *memory.Conversation, logs *memory.LogStore, st *stats.Stats, opt EngineOptions) *Engine {
	if opt.ContextTurns <= 0 {
		opt.ContextTurns = memory.DefaultConversationCapacity
	}
	if opt.RetryBudget < 0 {
		opt.RetryBudget = 0
	}
	if opt.Transient == nil {
		opt.Transient = Transient
	}
	return &Engine{
		llm:      llm,
		fallback: NewFallback(),
		cache:    cache,
		conv:     conv,
		logs:     logs,
		stats:    st,
		opt:      opt,
	}
}

// Respond produces a reply for input. It never returns an empty reply:
// when the cache misses and the model fails or is short-circuited, a
// canned fallback answers.
func (e *Engine) Respond(ctx context.Context, input string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	input = strings.TrimSpace(input)

	if input == "" {
		reply, cat := e.fallback.Reply(input)
		return Result{Reply: reply, Tier: TierFallback, Category: cat, Latency: time.Since(start)}
	}

	if hit, ok := e.cache.Get(input); ok {
		e.stats.CacheHit()
		return e.finish(input, Result{Reply: hit.Reply, Tier: TierCache, Latency: time.Since(start)})
	}
	e.stats.CacheMiss()

	if e.llm != nil && !e.short.Load() {
		reply, err := e.complete(ctx, input)
		if err == nil {
			e.cache.Put(input, reply)
			return e.finish(input, Result{Reply: reply, Tier: TierLLM, Latency: time.Since(start)})
		}
		log.Warn("Model reply failed, falling back", "err", err)
	}

	reply, cat := e.fallback.Reply(input)
	return e.finish(input, Result{Reply: reply, Tier: TierFallback, Category: cat, Latency: time.Since(start)})
}

// complete runs the model with the retry budget. Non-transient errors
// and caller cancellation stop the attempts early.
func (e *Engine) complete(ctx context.Context, input string) (string, error) {
	turns := e.conv.Context(e.opt.ContextTurns)

	var lastErr error
	for attempt := 0; attempt <= e.opt.RetryBudget; attempt++ {
		if attempt > 0 {
			e.stats.ModelRetry()
			log.Debug("Retrying model request", "attempt", attempt)
		}
		reply, err := e.llm.Complete(ctx, turns, input)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil || !e.opt.Transient(err) {
			break
		}
	}
	return "", lastErr
}

func (e *Engine) finish(input string, res Result) Result {
	e.conv.Append(input, res.Reply)
	e.logs.AppendTurn(input, res.Reply)
	e.stats.Exchange(string(res.Tier), res.Latency)
	return res
}

// SetShortCircuit makes Respond skip the model tier entirely. The
// health monitor trips it after repeated ping failures and clears it
// once the API answers again.
func (e *Engine) SetShortCircuit(on bool) {
	if e.short.Swap(on) != on {
		if on {
			log.Warn("Model short-circuit engaged")
		} else {
			log.Info("Model short-circuit cleared")
		}
	}
}

func (e *Engine) ShortCircuited() bool { return e.short.Load() }
