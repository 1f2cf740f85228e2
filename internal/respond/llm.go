package respond

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"gideon/internal/memory"
)

// LLMOptions configures the chat client. SDK retries are disabled so
// the engine's own retry budget is the only one in play.
type LLMOptions struct {
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64
	Timeout      time.Duration // per attempt
	HTTPClient   *http.Client
}

// LLM turns a prompt plus a short rolling context into one reply.
type LLM struct {
	client openai.Client
	opt    LLMOptions
}

func NewLLM(opt LLMOptions) *LLM {
	if opt.Model == "" {
		opt.Model = "gpt-5-nano"
	}
	if opt.MaxTokens <= 0 {
		opt.MaxTokens = 150
	}
	if opt.Temperature <= 0 {
		opt.Temperature = 0.7
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 20 * time.Second
	}

	ropts := []option.RequestOption{
		option.WithAPIKey(opt.APIKey),
		option.WithMaxRetries(0),
	}
	if opt.HTTPClient != nil {
		ropts = append(ropts, option.WithHTTPClient(opt.HTTPClient))
	}
	return &LLM{client: openai.NewClient(ropts...), opt: opt}
}

// Complete asks the model for a reply to user, replaying the given
// turns as context.
func (l *LLM) Complete(ctx context.Context, turns []memory.Turn, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opt.Timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)*2+2)
	msgs = append(msgs, openai.SystemMessage(l.opt.SystemPrompt))
	for _, t := range turns {
		msgs = append(msgs, openai.UserMessage(t.UserText))
		msgs = append(msgs, openai.AssistantMessage(t.AssistantText))
	}
	msgs = append(msgs, openai.UserMessage(user))

	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(l.opt.Model),
		MaxTokens:   openai.Int(l.opt.MaxTokens),
		Temperature: openai.Float(l.opt.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("empty reply")
	}
	return reply, nil
}

// Ping verifies the API answers at all. The health monitor calls it on
// every probe pass.
func (l *LLM) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.opt.Timeout)
	defer cancel()
	_, err := l.client.Models.List(ctx)
	return err
}

// Transient reports whether an error is worth another attempt. Rate
// limits, server errors, timeouts, and transport failures are; auth
// and cancellation are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500
	}
	// Transport failures and anything unclassified get the one retry.
	return true
}
