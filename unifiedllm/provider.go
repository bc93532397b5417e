package unifiedllm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Completer performs one provider round trip. Both ProviderAdapter and
// Client satisfy it.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderAdapter is the interface every provider backend must implement.
//
// Concrete adapters also expose BuildRequest, which serializes the full
// conversation and tool listing into the native payload, and ParseResponse,
// which maps the native reply and its stop reason into a Response or fails
// with *UnmappedStopReasonError.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic", "gemini").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// Provider identifiers accepted by NewAdapter.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderGollm     = "gollm"
)

// Providers lists every backend NewAdapter can build.
var Providers = []string{ProviderAnthropic, ProviderOpenAI, ProviderGroq, ProviderGemini, ProviderOllama, ProviderGollm}

// AdapterOption configures a provider adapter.
type AdapterOption func(*adapterConfig)

type adapterConfig struct {
	model         string
	maxTokens     int
	temperature   *float64
	baseURL       string
	httpClient    *http.Client
	logger        *slog.Logger
	gollmProvider string
}

func newAdapterConfig(provider string, opts []AdapterOption) *adapterConfig {
	cfg := &adapterConfig{maxTokens: 4096}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.model == "" {
		cfg.model = DefaultModel(provider)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	cfg.logger = cfg.logger.With("provider", provider)
	return cfg
}

// WithModel sets the default model for the adapter.
func WithModel(model string) AdapterOption {
	return func(c *adapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) AdapterOption {
	return func(c *adapterConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) AdapterOption {
	return func(c *adapterConfig) {
		c.temperature = &t
	}
}

// WithBaseURL points the adapter at a different API endpoint.
func WithBaseURL(url string) AdapterOption {
	return func(c *adapterConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used by SDK-backed adapters.
func WithHTTPClient(hc *http.Client) AdapterOption {
	return func(c *adapterConfig) {
		c.httpClient = hc
	}
}

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(c *adapterConfig) {
		c.logger = l
	}
}

// WithGollmProvider selects the backend gollm talks to (default "openai").
func WithGollmProvider(name string) AdapterOption {
	return func(c *adapterConfig) {
		c.gollmProvider = name
	}
}

// NewAdapter builds the adapter for provider. apiKey may be empty for
// providers that do not need one (ollama).
func NewAdapter(ctx context.Context, provider, apiKey string, opts ...AdapterOption) (ProviderAdapter, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicAdapter(apiKey, opts...), nil
	case ProviderOpenAI:
		return NewOpenAIAdapter(apiKey, opts...), nil
	case ProviderGroq:
		return NewGroqAdapter(apiKey, opts...), nil
	case ProviderGemini:
		return NewGeminiAdapter(ctx, apiKey, opts...)
	case ProviderOllama:
		return NewOllamaAdapter(opts...)
	case ProviderGollm:
		return NewGollmAdapter(apiKey, opts...)
	default:
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("unknown provider %q", provider),
		}}
	}
}
