// Package source yields raw documents for the pipeline.
package source

import (
	"context"

	"github.com/ziadkadry99/distill/internal/model"
)

// Source yields the current set of raw documents. Ids must be stable
// across calls and unique within one call.
type Source interface {
	Documents(ctx context.Context) ([]model.RawDocument, error)
}

// Static is a fixed in-memory set of documents.
type Static []model.RawDocument

// Documents returns a copy of the slice with content hashes filled in.
func (s Static) Documents(context.Context) ([]model.RawDocument, error) {
	out := make([]model.RawDocument, len(s))
	for i, d := range s {
		d.ContentHash = d.Hash()
		if d.SourceType == "" {
			d.SourceType = "text"
		}
		out[i] = d
	}
	return out, nil
}
