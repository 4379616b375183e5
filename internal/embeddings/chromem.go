package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemFunc adapts a Service to chromem's single-text embedding function,
// used when the index embeds a query string.
func ChromemFunc(s *Service) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.EmbedText(ctx, text)
	}
}
