// Package llm is a single-turn client for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
)

const (
	DefaultBaseURL   = "https://api.groq.com/openai/v1"
	DefaultModel     = "llama3-8b-8192"
	DefaultMaxTokens = 1024

	completionsPath = "/chat/completions"
	userAgent       = "weather-advisory-service"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest holds per-call sampling parameters. The model comes from the client.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// UserPrompt builds a request carrying a single user message.
func UserPrompt(prompt string, temperature float64, maxTokens int) CompletionRequest {
	return CompletionRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// Completer returns the text of the first completion choice, or "" when the
// provider returns no choices.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client calls the completion endpoint with a bearer token. One attempt per call.
type Client struct {
	client  *resty.Client
	apiKey  string
	model   string
	breaker *circuitbreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithCircuitBreaker routes every call through cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewClient creates a client for baseURL. An empty apiKey is accepted; calls
// then fail with an UpstreamConfiguration error.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	c := &Client{client: rc, apiKey: apiKey, model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends req and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.apiKey == "" {
		observability.LLMCallsTotal.WithLabelValues("client_error").Inc()
		return "", apperror.UpstreamConfiguration("llm", "API key is not configured")
	}
	if c.breaker == nil {
		return c.complete(ctx, req)
	}

	var text string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		text, callErr = c.complete(ctx, req)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.LLMCallsTotal.WithLabelValues("circuit_open").Inc()
		return "", apperror.Upstream("llm", "circuit breaker open", err)
	}
	return text, err
}

func (c *Client) complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	body := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	r := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(body).
		SetResult(&chatResponse{}).
		SetError(&errorResponse{})
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		r.SetHeader("X-Correlation-ID", corrID)
	}

	start := time.Now()
	resp, err := r.Post(completionsPath)
	if err != nil {
		observability.LLMCallsTotal.WithLabelValues("error").Inc()
		observability.LLMDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperror.Upstream("llm", "request timeout", err)
		}
		return "", apperror.Upstream("llm", "http request failed", err)
	}

	status := statusLabel(resp.StatusCode())
	observability.LLMCallsTotal.WithLabelValues(status).Inc()
	observability.LLMDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if resp.IsError() {
		return "", responseError(resp)
	}

	out, ok := resp.Result().(*chatResponse)
	if !ok || out == nil {
		return "", apperror.Upstream("llm", "unexpected response body", nil)
	}
	observability.LLMTokensTotal.WithLabelValues("prompt").Add(float64(out.Usage.PromptTokens))
	observability.LLMTokensTotal.WithLabelValues("completion").Add(float64(out.Usage.CompletionTokens))

	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

func responseError(resp *resty.Response) error {
	detail := fmt.Sprintf("HTTP %d", resp.StatusCode())
	if er, ok := resp.Error().(*errorResponse); ok && er != nil && er.Error.Message != "" {
		detail += ": " + er.Error.Message
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return apperror.UpstreamConfiguration("llm", detail)
	}
	return apperror.Upstream("llm", detail, nil)
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code >= 400 && code < 500:
		return "client_error"
	case code >= 500:
		return "server_error"
	default:
		return "error"
	}
}
