package distill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ziadkadry99/distill/internal/llm"
	"github.com/ziadkadry99/distill/internal/model"
)

// Synthesis is a synthesizer's raw reading of a cluster. Note references
// are 1-based positions in the notes passed to Synthesize.
type Synthesis struct {
	Theme          string               `json:"theme"`
	Perspectives   []DraftPerspective   `json:"perspectives"`
	Contradictions []DraftContradiction `json:"contradictions"`
}

// DraftPerspective is one viewpoint as returned by the synthesizer.
type DraftPerspective struct {
	Statement string `json:"statement"`
	Notes     []int  `json:"notes"`
}

// DraftContradiction is one tension as returned by the synthesizer.
type DraftContradiction struct {
	Description string `json:"description"`
	Notes       []int  `json:"notes"`
}

// Synthesizer is the text-generation capability the strategies need.
// Strict asks for the tightened instruction used after a malformed reply.
type Synthesizer interface {
	// Merge states the one idea a group of near-duplicate notes shares.
	Merge(ctx context.Context, anchor model.AtomicNote, others []model.AtomicNote, strict bool) (string, error)
	// Synthesize reads a topic cluster as a theme, perspectives and contradictions.
	Synthesize(ctx context.Context, notes []model.AtomicNote, strict bool) (*Synthesis, error)
}

// LLMSynthesizer implements Synthesizer with a text-generation provider.
type LLMSynthesizer struct {
	provider llm.Provider
	model    string
}

// NewLLMSynthesizer returns a Synthesizer backed by provider.
func NewLLMSynthesizer(provider llm.Provider, model string) *LLMSynthesizer {
	return &LLMSynthesizer{provider: provider, model: model}
}

func (s *LLMSynthesizer) complete(ctx context.Context, system, user string, strict bool, maxTokens int) (string, error) {
	temp := 0.3
	if strict {
		system += strictSuffix
		temp = 0
	}
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temp,
		JSONMode:    true,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Merge implements Synthesizer.
func (s *LLMSynthesizer) Merge(ctx context.Context, anchor model.AtomicNote, others []model.AtomicNote, strict bool) (string, error) {
	raw, err := s.complete(ctx, mergeSystemPrompt, buildMergePrompt(anchor, others), strict, 400)
	if err != nil {
		return "", fmt.Errorf("merge completion: %w", err)
	}
	var reply struct {
		Theme string `json:"theme"`
	}
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &reply); err != nil {
		return "", fmt.Errorf("%w: merge reply: %v", model.ErrMalformedResponse, err)
	}
	theme := strings.TrimSpace(reply.Theme)
	if theme == "" {
		return "", fmt.Errorf("%w: merge reply has no theme", model.ErrMalformedResponse)
	}
	return theme, nil
}

// Synthesize implements Synthesizer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, notes []model.AtomicNote, strict bool) (*Synthesis, error) {
	raw, err := s.complete(ctx, synthesizeSystemPrompt, buildSynthesizePrompt(notes), strict, 2000)
	if err != nil {
		return nil, fmt.Errorf("synthesis completion: %w", err)
	}
	return ParseSynthesis(raw)
}

// ParseSynthesis decodes a synthesis reply. A reply without a theme is
// malformed: an empty concept is never better than a retry.
func ParseSynthesis(raw string) (*Synthesis, error) {
	var syn Synthesis
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &syn); err != nil {
		return nil, fmt.Errorf("%w: synthesis reply: %v", model.ErrMalformedResponse, err)
	}
	syn.Theme = strings.TrimSpace(syn.Theme)
	if syn.Theme == "" {
		return nil, fmt.Errorf("%w: synthesis reply has no theme", model.ErrMalformedResponse)
	}
	return &syn, nil
}
