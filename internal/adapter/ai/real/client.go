// Package real implements domain.AIGrader against an OpenAI-compatible API.
package real

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

const provider = "openai"

// Client grades submissions with a chat completion model.
type Client struct {
	cfg     config.Config
	api     *openai.Client
	limiter domain.RateLimiter
	counter *tokencount.Counter
}

var _ domain.AIGrader = (*Client)(nil)

// New constructs a Client. limiter may be nil to disable the per-organization budget.
func New(cfg config.Config, limiter domain.RateLimiter) *Client {
	oc := openai.DefaultConfig(cfg.AIAPIKey)
	if cfg.AIBaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.AIBaseURL, "/")
	}
	oc.HTTPClient = &http.Client{
		Timeout:   cfg.AITimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &Client{
		cfg:     cfg,
		api:     openai.NewClientWithConfig(oc),
		limiter: limiter,
		counter: tokencount.DefaultCounter,
	}
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime, expo.InitialInterval, expo.MaxInterval, expo.Multiplier = c.cfg.GetAIBackoffConfig()
	return expo
}

// Grade returns the raw model output for content. The output is not parsed here.
func (c *Client) Grade(ctx domain.Context, organizationID string, t domain.ExerciseType, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("op=ai.grade: %w: empty submission", domain.ErrInvalidArgument)
	}
	system, err := ai.SystemPrompt(t)
	if err != nil {
		return "", fmt.Errorf("op=ai.grade: %w", err)
	}
	if err := c.reserve(ctx, organizationID); err != nil {
		return "", err
	}
	observability.AIPromptTokens.WithLabelValues(string(t)).Observe(float64(c.counter.CountChat(system, content, c.cfg.AIModel)))

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.AIModel,
		MaxTokens:   c.cfg.AIMaxTokens,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	var (
		out         string
		rateLimited bool
	)
	op := func() error {
		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			status := statusOf(err)
			observability.ObserveAIRequest(provider, string(t), outcomeOf(status, err), time.Since(start))
			rateLimited = status == http.StatusTooManyRequests
			if status >= 400 && status < 500 && !rateLimited {
				slog.Warn("ai provider 4xx", slog.String("provider", provider), slog.Int("status", status), slog.Any("error", err))
				return backoff.Permanent(err)
			}
			slog.Warn("ai provider call failed, retrying", slog.String("provider", provider), slog.Int("status", status), slog.Any("error", err))
			return err
		}
		observability.ObserveAIRequest(provider, string(t), "ok", time.Since(start))
		if len(resp.Choices) == 0 {
			return backoff.Permanent(&domain.MalformedResponseError{Reason: "no choices returned"})
		}
		out = resp.Choices[0].Message.Content
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoffConfig(), ctx)); err != nil {
		return "", fmt.Errorf("op=ai.grade: %w", classify(ctx, err, rateLimited))
	}
	return out, nil
}

func (c *Client) reserve(ctx context.Context, organizationID string) error {
	if c.limiter == nil {
		return nil
	}
	allowed, retryAfter, err := c.limiter.Allow(ctx, "ai:"+organizationID, 1)
	if err != nil {
		// fail open, the provider still enforces its own limits
		slog.Warn("ai budget check failed", slog.String("organization_id", organizationID), slog.Any("error", err))
		return nil
	}
	if !allowed {
		return fmt.Errorf("op=ai.grade: %w: organization %s, retry after %s", domain.ErrRateLimited, organizationID, retryAfter.Round(time.Second))
	}
	return nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func outcomeOf(status int, err error) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "upstream_error"
	case status >= 400:
		return "rejected"
	case isTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classify maps the final retry error onto the domain taxonomy.
func classify(ctx context.Context, err error, rateLimited bool) error {
	switch {
	case errors.Is(err, domain.ErrMalformedResponse):
		return err
	case rateLimited:
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	case isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	default:
		return err
	}
}
