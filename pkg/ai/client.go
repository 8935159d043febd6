// Package ai produces fit-report narratives through one configured text
// generation provider.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fit-report/pkg/ai/providers"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ErrorKind classifies a GenerationError.
type ErrorKind string

const (
	KindConfig   ErrorKind = "config"
	KindUpstream ErrorKind = "upstream"
)

// GenerationError is the only error type returned by Client.Generate.
type GenerationError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	return "Error calling LLM service: " + e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Provider generates text for a rendered prompt.
type Provider interface {
	Generate(ctx context.Context, p providers.Prompt) (string, error)
}

// Config selects and configures the generation backend.
type Config struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OllamaURL     string
	OllamaModel   string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// Client dispatches to exactly one provider. There is no fallback between
// providers and no retry.
type Client struct {
	provider  string
	providers map[string]Provider
	logger    *slog.Logger
}

// NewClient builds both provider clients and selects cfg.Provider. An
// unsupported provider is only logged here; every Generate call then fails.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	c := &Client{
		provider: strings.ToLower(strings.TrimSpace(cfg.Provider)),
		providers: map[string]Provider{
			ProviderOpenAI: &providers.OpenAI{
				BaseURL: cfg.OpenAIBaseURL,
				APIKey:  cfg.OpenAIAPIKey,
				Options: providers.Options{Model: cfg.OpenAIModel, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
				HTTP:    hc,
			},
			ProviderOllama: &providers.Ollama{
				URL: cfg.OllamaURL,
				// The Ollama prompt asks for a longer report.
				Options: providers.Options{Model: cfg.OllamaModel, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens * 2},
				HTTP:    hc,
			},
		},
		logger: logger,
	}
	if _, ok := c.providers[c.provider]; !ok {
		logger.Warn("unsupported LLM provider configured; generation will fail", "provider", cfg.Provider)
	}
	return c
}

// NewClientWithProvider builds a Client around a single provider registered
// under name. It is used by tests and the local batch harness.
func NewClientWithProvider(name string, p Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: name, providers: map[string]Provider{name: p}, logger: logger}
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

// Generate renders the prompt for record and jobDescription and returns the
// provider's narrative.
func (c *Client) Generate(ctx context.Context, record map[string]string, jobDescription string) (string, error) {
	p, ok := c.providers[c.provider]
	if !ok {
		return "", &GenerationError{
			Kind:     KindConfig,
			Provider: c.provider,
			Message:  fmt.Sprintf("Unsupported LLM endpoint: %s", c.provider),
		}
	}

	prompt, err := BuildPrompt(c.provider, record, jobDescription)
	if err != nil {
		return "", &GenerationError{Kind: KindConfig, Provider: c.provider, Message: err.Error(), Err: err}
	}

	start := time.Now()
	text, err := p.Generate(ctx, prompt)
	if err != nil {
		ge := &GenerationError{Kind: KindUpstream, Provider: c.provider, Message: err.Error(), Err: err}
		var pe *providers.Error
		if errors.As(err, &pe) && pe.Status == 0 && pe.Err == nil {
			ge.Kind = KindConfig
		}
		return "", ge
	}
	c.logger.DebugContext(ctx, "narrative generated",
		"provider", c.provider,
		"chars", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}
