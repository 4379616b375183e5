package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ziadkadry99/distill/internal/llm"
	"github.com/ziadkadry99/distill/internal/model"
)

// LLMService implements Service with a text-generation provider.
type LLMService struct {
	provider llm.Provider
	model    string
}

// NewLLMService returns a Service backed by provider.
func NewLLMService(provider llm.Provider, model string) *LLMService {
	return &LLMService{provider: provider, model: model}
}

// Summarize returns a short summary of the whole document.
func (s *LLMService) Summarize(ctx context.Context, doc model.RawDocument) (string, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:       s.model,
		Messages:    buildSummaryMessages(doc.Title, doc.Text),
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Extract asks for the atomic notes of one chunk.
func (s *LLMService) Extract(ctx context.Context, req Request) ([]Candidate, error) {
	temp := 0.2
	if req.Strict {
		temp = 0
	}
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:       s.model,
		Messages:    buildExtractMessages(req),
		MaxTokens:   1500,
		Temperature: temp,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}
	return ParseCandidates(resp.Content)
}

// ParseCandidates decodes an extraction reply. It accepts the documented
// {"notes": [...]} object, a bare array, and either wrapped in markdown
// fences. Anything else is a model.ErrMalformedResponse.
func ParseCandidates(raw string) ([]Candidate, error) {
	raw = llm.StripFences(raw)

	var wrapped struct {
		Notes *[]Candidate `json:"notes"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Notes != nil {
		return *wrapped.Notes, nil
	}
	var bare []Candidate
	if err := json.Unmarshal([]byte(raw), &bare); err == nil {
		return bare, nil
	}
	return nil, fmt.Errorf("%w: reply is not a notes object: %.80q", model.ErrMalformedResponse, raw)
}
