package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

// GenerateRequest is what a provider receives after options are resolved.
type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// Provider is one LLM backend. Implementations own their HTTP or SDK client.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Close() error
}

type GatewayConfig struct {
	Provider    string
	Temperature float64
	MaxTokens   int
	// HTTPTimeout bounds a single request at the transport level. The answer
	// deadline is enforced by the caller's context.
	HTTPTimeout time.Duration

	OpenAI    ChatConfig
	Anthropic ChatConfig
	Gemini    ChatConfig
}

// GenerateOption overrides a configured default for one call.
type GenerateOption func(*GenerateRequest)

func WithTemperature(t float64) GenerateOption {
	return func(r *GenerateRequest) { r.Temperature = t }
}

func WithMaxTokens(n int) GenerateOption {
	return func(r *GenerateRequest) { r.MaxTokens = n }
}

// Gateway exposes a single Generate call over whichever provider was configured.
type Gateway struct {
	provider    Provider
	temperature float64
	maxTokens   int
}

// NewGateway selects the provider named in cfg. An unknown name fails before
// any client is created.
func NewGateway(ctx context.Context, cfg GatewayConfig) (*Gateway, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var (
		provider Provider
		err      error
	)
	switch name {
	case ProviderOpenAI:
		provider = &openAIProvider{client: NewOpenAICompatibleClient(cfg.HTTPTimeout), cfg: cfg.OpenAI}
	case ProviderAnthropic:
		provider, err = newAnthropicProvider(cfg.Anthropic, cfg.HTTPTimeout)
	case ProviderGemini:
		provider, err = newGeminiProvider(ctx, cfg.Gemini)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider failed: %w", name, err)
	}
	return NewGatewayWithProvider(provider, cfg.Temperature, cfg.MaxTokens), nil
}

// NewGatewayWithProvider wraps an already constructed provider.
func NewGatewayWithProvider(provider Provider, temperature float64, maxTokens int) *Gateway {
	return &Gateway{provider: provider, temperature: temperature, maxTokens: maxTokens}
}

func (g *Gateway) Generate(ctx context.Context, prompt, systemPrompt string, opts ...GenerateOption) (string, error) {
	req := GenerateRequest{
		Prompt:      prompt,
		System:      systemPrompt,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return g.provider.Generate(ctx, req)
}

func (g *Gateway) ProviderName() string {
	return g.provider.Name()
}

func (g *Gateway) Close() error {
	return g.provider.Close()
}
