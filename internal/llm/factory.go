package llm

import (
	"fmt"
	"os"
)

// NewProvider creates a new LLM provider based on the given provider type and model.
// Supported provider types: "anthropic", "openai", "openrouter", "ollama".
func NewProvider(providerType string, model string) (Provider, error) {
	switch providerType {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		return NewAnthropicProvider(apiKey, model), nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
			return NewCompatibleProvider("openai", apiKey, base, model), nil
		}
		return NewOpenAIProvider(apiKey, model), nil

	case "openrouter":
		apiKey := os.Getenv("OPENROUTER_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable is not set")
		}
		return NewOpenRouterProvider(apiKey, model), nil

	case "ollama":
		return NewOllamaProvider(OllamaHost(), model), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

// OllamaHost returns OLLAMA_HOST or the local default.
func OllamaHost() string {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		return host
	}
	return "http://localhost:11434"
}

// StackOptions configures the wrappers applied by Stack.
type StackOptions struct {
	RequestsPerMinute int
	Backoff           Backoff
}

// Stack layers rate limiting under retries under metering, so every retry
// waits for the limiter and the meter sees one call per logical request.
func Stack(p Provider, model string, opts StackOptions) *MeteredProvider {
	p = NewRateLimitedProvider(p, opts.RequestsPerMinute)
	p = NewRetryingProvider(p, opts.Backoff)
	return NewMeteredProvider(p, model)
}
