package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const fileName = "chromem.gob.gz"

// ChromemStore implements VectorStore using chromem-go, one collection per kind.
type ChromemStore struct {
	db          *chromem.DB
	collections map[Kind]*chromem.Collection
	embedFunc   chromem.EmbeddingFunc
}

// NewChromemStore creates a new in-memory ChromemStore. embed is used for
// query texts and for entries stored without a vector.
func NewChromemStore(embed chromem.EmbeddingFunc) (*ChromemStore, error) {
	s := &ChromemStore{db: chromem.NewDB(), embedFunc: embed}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromemStore) open() error {
	s.collections = make(map[Kind]*chromem.Collection, len(Kinds))
	for _, k := range Kinds {
		col, err := s.db.GetOrCreateCollection(string(k), nil, s.embedFunc)
		if err != nil {
			return fmt.Errorf("create collection %s: %w", k, err)
		}
		s.collections[k] = col
	}
	return nil
}

func (s *ChromemStore) collection(kind Kind) (*chromem.Collection, error) {
	col, ok := s.collections[kind]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", kind)
	}
	return col, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, kind Kind, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	col, err := s.collection(kind)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Embedding: e.Embedding,
			Metadata:  metadataToMap(e.Metadata),
		}
	}
	return col.AddDocuments(ctx, docs, runtime.NumCPU())
}

func (s *ChromemStore) Search(ctx context.Context, kind Kind, query string, limit int, filter *SearchFilter) ([]SearchResult, error) {
	col, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, buildWhereClause(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Entry: Entry{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Kind:       kind,
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

func (s *ChromemStore) Has(ctx context.Context, kind Kind, id string) bool {
	col, err := s.collection(kind)
	if err != nil {
		return false
	}
	_, err = col.GetByID(ctx, id)
	return err == nil
}

func (s *ChromemStore) Delete(ctx context.Context, kind Kind, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(kind)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, ids...)
}

func (s *ChromemStore) Persist(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	return s.db.ExportToFile(filepath.Join(dir, fileName), true, "")
}

// Load restores a persisted index. A missing file leaves the store empty.
func (s *ChromemStore) Load(_ context.Context, dir string) error {
	path := filepath.Join(dir, fileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := s.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection references after import.
	return s.open()
}

func (s *ChromemStore) Count(kind Kind) int {
	col, err := s.collection(kind)
	if err != nil {
		return 0
	}
	return col.Count()
}

func metadataToMap(m EntryMetadata) map[string]string {
	md := map[string]string{
		"document_id":  m.DocumentID,
		"note_type":    m.NoteType,
		"strategy":     m.Strategy,
		"content_hash": m.ContentHash,
		"sources":      strconv.Itoa(m.Sources),
	}
	if !m.UpdatedAt.IsZero() {
		md["updated_at"] = m.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return md
}

func mapToMetadata(m map[string]string) EntryMetadata {
	sources, _ := strconv.Atoi(m["sources"])
	updated, _ := time.Parse(time.RFC3339, m["updated_at"])
	return EntryMetadata{
		DocumentID:  m["document_id"],
		NoteType:    m["note_type"],
		Strategy:    m["strategy"],
		ContentHash: m["content_hash"],
		Sources:     sources,
		UpdatedAt:   updated,
	}
}

// buildWhereClause converts a SearchFilter to a chromem where clause.
func buildWhereClause(filter *SearchFilter) map[string]string {
	if filter == nil {
		return nil
	}

	where := make(map[string]string)
	if filter.DocumentID != nil {
		where["document_id"] = *filter.DocumentID
	}
	if filter.NoteType != nil {
		where["note_type"] = *filter.NoteType
	}
	if filter.Strategy != nil {
		where["strategy"] = *filter.Strategy
	}

	if len(where) == 0 {
		return nil
	}
	return where
}
