package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/store"
)

// NewProvider creates a Provider from configuration.
// It returns the provider wrapped with timeout, quota retry and event
// logging middleware.
func NewProvider(ctx context.Context, cfg Config, events store.LLMEventAppender, log *zap.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// caller → timeout → retry → logging → base
	logged := WithLogging(base, events, log)
	retried := WithRetry(logged, cfg.Retry)
	return WithTimeout(retried, cfg.Timeout), nil
}

// NewProviderFromEnv reads QFORGE_* configuration, falling back to
// well-known API key variables when no provider key is set.
func NewProviderFromEnv(ctx context.Context, events store.LLMEventAppender, log *zap.Logger) (Provider, error) {
	cfg := ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		discovered, ok := DiscoverConfig()
		if !ok {
			return nil, err
		}
		discovered.Retry = cfg.Retry
		discovered.Timeout = cfg.Timeout
		cfg = discovered
	}
	return NewProvider(ctx, cfg, events, log)
}
