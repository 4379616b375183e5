package llm

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewOpenRouterProvider creates a provider for OpenRouter, which speaks the
// OpenAI chat completions protocol.
func NewOpenRouterProvider(apiKey string, model string) *OpenAIProvider {
	return NewCompatibleProvider("openrouter", apiKey, openRouterBaseURL, model)
}
