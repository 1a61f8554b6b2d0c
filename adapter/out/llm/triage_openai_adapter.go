// Package llm adapts the OpenAI chat completion API to the TextCompletion
// port. All completion traffic flows through a circuit breaker; transient
// failures are retried with exponential backoff before they surface to the
// core as CompletionError.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"triage_server/core/port/out"
)

// =============================================================================
// OpenAI Adapter
// =============================================================================

const DefaultModel = "gpt-4o-mini"

// Config holds the adapter configuration.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
	RetryBase   time.Duration
}

// OpenAIAdapter implements out.TextCompletion on the OpenAI chat API.
type OpenAIAdapter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	maxRetries  int
	retryBase   time.Duration
	cb          *gobreaker.CircuitBreaker
	costs       *CostTracker
	log         zerolog.Logger
}

// NewOpenAIAdapter creates the adapter.
func NewOpenAIAdapter(cfg Config, log zerolog.Logger) *OpenAIAdapter {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}

	cbSettings := gobreaker.Settings{
		Name:        "openai-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &OpenAIAdapter{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		maxRetries:  maxRetries,
		retryBase:   retryBase,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
		costs:       NewCostTracker(),
		log:         log.With().Str("component", "openai").Logger(),
	}
}

var _ out.TextCompletion = (*OpenAIAdapter)(nil)

// Complete issues one chat completion. When a schema hint is set the request
// forces JSON object output so the core's strict parsers see clean payloads.
func (a *OpenAIAdapter) Complete(ctx context.Context, systemPrompt, userPrompt string, hint out.SchemaHint) (string, *out.CompletionUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if hint != "" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	op := string(hint)
	if op == "" {
		op = "completion"
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.retryBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", nil, out.NewCompletionError(out.CompletionTransient, op, ctx.Err())
			case <-time.After(backoff):
			}
		}

		v, err := a.cb.Execute(func() (interface{}, error) {
			return a.client.CreateChatCompletion(ctx, req)
		})
		if err != nil {
			lastErr = err
			if isTransient(err) {
				a.log.Warn().
					Err(err).
					Str("op", op).
					Int("attempt", attempt+1).
					Int("max_attempts", a.maxRetries+1).
					Msg("completion attempt failed")
				continue
			}
			return "", nil, out.NewCompletionError(out.CompletionPermanent, op, err)
		}

		resp := v.(openai.ChatCompletionResponse)
		if len(resp.Choices) == 0 {
			return "", nil, out.NewCompletionError(out.CompletionUnparsable, op, errors.New("empty choices"))
		}

		usage := &out.CompletionUsage{
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		a.costs.Track(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		return resp.Choices[0].Message.Content, usage, nil
	}

	return "", nil, out.NewCompletionError(out.CompletionTransient, op, lastErr)
}

// CostStats returns accumulated usage cost statistics.
func (a *OpenAIAdapter) CostStats() CostStats {
	return a.costs.Stats()
}

// isTransient reports whether the error is worth retrying: rate limits,
// server errors, timeouts, and an open breaker (the breaker may half-open
// within the retry window).
func isTransient(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	// Network-level failures without a structured API error.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "i/o timeout")
}
