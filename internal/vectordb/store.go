package vectordb

import "context"

// VectorStore stores notes and concepts for semantic search.
type VectorStore interface {
	// Upsert adds entries or replaces entries with the same id.
	Upsert(ctx context.Context, kind Kind, entries []Entry) error

	// Search returns the entries most similar to the query text.
	Search(ctx context.Context, kind Kind, query string, limit int, filter *SearchFilter) ([]SearchResult, error)

	// Has reports whether an entry is stored.
	Has(ctx context.Context, kind Kind, id string) bool

	// Delete removes entries by id. Unknown ids are ignored.
	Delete(ctx context.Context, kind Kind, ids ...string) error

	// Persist saves the store's data to the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores the store's data from the given directory.
	Load(ctx context.Context, dir string) error

	// Count returns the number of entries of a kind.
	Count(kind Kind) int
}
