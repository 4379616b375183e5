package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ziadkadry99/distill/internal/chunk"
	"github.com/ziadkadry99/distill/internal/llm"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// MaxChars is the longest text sent in one embedding input; longer
	// texts are split and their vectors averaged.
	MaxChars          int
	Backoff           llm.Backoff
	RequestsPerMinute int
}

// Service embeds one text at a time with retries, rate limiting and
// averaging over pieces of long texts.
type Service struct {
	embedder Embedder
	opts     ServiceOptions
	limiter  *rate.Limiter
}

// NewService wraps an Embedder.
func NewService(e Embedder, opts ServiceOptions) *Service {
	s := &Service{embedder: e, opts: opts}
	if opts.RequestsPerMinute > 0 {
		s.limiter = llm.NewLimiter(opts.RequestsPerMinute)
	}
	return s
}

// Name returns the wrapped embedder's model name.
func (s *Service) Name() string { return s.embedder.Name() }

// Dimensions returns the wrapped embedder's vector length.
func (s *Service) Dimensions() int { return s.embedder.Dimensions() }

// EmbedText returns one vector for text. Text longer than MaxChars is split
// at sentence breaks; the piece vectors are averaged so the dimensionality
// stays fixed.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	pieces := chunk.ByChars(text, s.opts.MaxChars)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("embed empty text")
	}

	var vecs [][]float32
	err := s.opts.Backoff.Do(ctx, s.embedder.Name()+" embedding", llm.Retryable, func() error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		vecs, err = s.embedder.Embed(ctx, pieces)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pieces) {
		return nil, fmt.Errorf("%s returned %d vectors for %d inputs", s.embedder.Name(), len(vecs), len(pieces))
	}
	if len(vecs) == 1 {
		if len(vecs[0]) == 0 {
			return nil, fmt.Errorf("%s returned an empty vector", s.embedder.Name())
		}
		return vecs[0], nil
	}
	return Mean(vecs)
}
