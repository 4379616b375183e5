package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ziadkadry99/distill/internal/llm"
	"github.com/ziadkadry99/distill/internal/model"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaEmbedder generates embeddings using a local Ollama instance.
// Ollama models do not advertise their vector length, so unless one is
// configured it is taken from the first reply. Every later reply must
// match it.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions atomic.Int64
	httpClient *http.Client
}

// NewOllamaEmbedder creates a new Ollama embedder.
// name is the Ollama model name (e.g. "nomic-embed-text").
// dimensions is the expected vector length; 0 learns it from the first reply.
// baseURL defaults to http://localhost:11434 if empty.
func NewOllamaEmbedder(name string, dimensions int, baseURL string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	e := &OllamaEmbedder{
		baseURL:    baseURL,
		model:      name,
		httpClient: &http.Client{},
	}
	e.dimensions.Store(int64(dimensions))
	return e
}

func (e *OllamaEmbedder) Name() string {
	return "ollama/" + e.model
}

// Dimensions returns the vector length, or 0 before the first reply when
// none was configured.
func (e *OllamaEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.baseURL, "/")+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &llm.APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings, expected %d",
			model.ErrMalformedResponse, len(result.Embeddings), len(texts))
	}
	if err := e.checkDimensions(result.Embeddings); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

func (e *OllamaEmbedder) checkDimensions(vecs [][]float32) error {
	if len(vecs[0]) == 0 {
		return fmt.Errorf("%w: ollama model %s returned an empty vector", model.ErrMalformedResponse, e.model)
	}
	e.dimensions.CompareAndSwap(0, int64(len(vecs[0])))
	want := e.Dimensions()
	for _, v := range vecs {
		if len(v) != want {
			return fmt.Errorf("%w: ollama model %s returned %d dimensions, want %d",
				model.ErrMalformedResponse, e.model, len(v), want)
		}
	}
	return nil
}
