// Package llm implements the prompt/response pipeline shared by the domain
// services: deterministic seeding, cache keys, schema validation, bounded
// concurrency, and rate-limit-aware retries around hosted completion APIs.
package llm

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/forkline/expansion-cli/internal/resilience"
	"github.com/forkline/expansion-cli/pkg/anthropic"
	"github.com/forkline/expansion-cli/pkg/openai"
)

// Request is the provider-neutral completion request built by the pipeline.
type Request struct {
	System    string
	User      string
	MaxTokens int
	Seed      int64
	JSONMode  bool
}

// Response is the provider-neutral completion result.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider abstracts a hosted completion API.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// openaiProvider adapts the OpenAI client, mapping API errors to the
// resilience package's transient classification.
type openaiProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider wraps an OpenAI client as the primary provider.
func NewOpenAIProvider(client openai.Client, model string) Provider {
	return &openaiProvider{client: client, model: model}
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	creq := openai.ChatCompletionRequest{
		Model: p.model,
		Seed:  &req.Seed,
		Messages: []openai.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = &req.MaxTokens
	}
	if req.JSONMode {
		creq.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
	}

	resp, err := p.client.ChatCompletion(ctx, creq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	text, err := openai.ExtractText(resp)
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return resilience.NewRateLimitError(err, apiErr.RetryAfter)
		}
		if resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return resilience.NewTransientError(err, apiErr.StatusCode)
		}
	}
	return err
}

// anthropicProvider adapts the Anthropic SDK client as the fallback
// provider. Anthropic has no seed parameter; determinism comes from
// temperature zero, which is weaker but acceptable for a fallback path.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider wraps an Anthropic client as the fallback provider.
func NewAnthropicProvider(client anthropic.Client, model string) Provider {
	return &anthropicProvider{client: client, model: model}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	zero := 0.0

	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.User}},
		Temperature: &zero,
	})
	if err != nil {
		return nil, err
	}
	if resp.Text == "" {
		return nil, eris.New("llm: empty anthropic response")
	}

	return &Response{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
