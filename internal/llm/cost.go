package llm

import (
	"context"
	"sync"
)

// modelPricing holds per-model pricing in USD per 1M tokens.
type modelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var priceTable = map[string]modelPricing{
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5-20251001":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"claude-opus-4-1-20250805":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},

	"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":     {InputPerMillion: 2.00, OutputPerMillion: 8.00},
}

// EstimateCost returns the estimated cost in USD for the given model and token counts.
// Returns 0 if the model is not found in the price table.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := priceTable[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000.0*pricing.InputPerMillion +
		float64(outputTokens)/1_000_000.0*pricing.OutputPerMillion
}

// EstimateTokens provides a rough token count estimation for the given text.
// Uses the approximation of 1 token per 4 characters.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

// Usage accumulates calls and tokens across a run.
type Usage struct {
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Sub returns the usage accumulated since an earlier snapshot.
func (u Usage) Sub(earlier Usage) Usage {
	return Usage{
		Calls:        u.Calls - earlier.Calls,
		Failures:     u.Failures - earlier.Failures,
		InputTokens:  u.InputTokens - earlier.InputTokens,
		OutputTokens: u.OutputTokens - earlier.OutputTokens,
		CostUSD:      u.CostUSD - earlier.CostUSD,
	}
}

// MeteredProvider records usage of the provider it wraps. It is safe for
// concurrent use.
type MeteredProvider struct {
	provider Provider
	model    string

	mu    sync.Mutex
	usage Usage
}

// NewMeteredProvider wraps provider. model prices responses that do not
// report their own model name.
func NewMeteredProvider(provider Provider, model string) *MeteredProvider {
	return &MeteredProvider{provider: provider, model: model}
}

func (m *MeteredProvider) Name() string {
	return m.provider.Name()
}

func (m *MeteredProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := m.provider.Complete(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.Calls++
	if err != nil {
		m.usage.Failures++
		return nil, err
	}
	m.usage.InputTokens += resp.InputTokens
	m.usage.OutputTokens += resp.OutputTokens
	priced := m.model
	if _, ok := priceTable[resp.Model]; ok {
		priced = resp.Model
	}
	m.usage.CostUSD += EstimateCost(priced, resp.InputTokens, resp.OutputTokens)
	return resp, nil
}

// Usage returns a snapshot of the accumulated usage.
func (m *MeteredProvider) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}
