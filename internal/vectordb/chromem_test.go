package vectordb

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/distill/internal/model"
)

// hashEmbed produces a normalized vector from text. Similar texts produce
// similar vectors because shared characters land in the same positions.
func hashEmbed(dims int) func(context.Context, string) ([]float32, error) {
	return func(_ context.Context, text string) ([]float32, error) {
		return hashVector(text, dims), nil
	}
}

func hashVector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for i, ch := range strings.ToLower(text) {
		idx := (int(ch) + i) % dims
		vec[idx] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(hashEmbed(64))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return s
}

func testNote(doc string, pos int, text string) model.AtomicNote {
	return model.AtomicNote{
		ID:         model.NoteID(doc, pos),
		DocumentID: doc,
		Position:   pos,
		Text:       text,
		Type:       model.NoteIdea,
		TextHash:   model.ContentHash(text),
		Embedding:  hashVector(text, 64),
	}
}

func TestChromemStore_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	notes := []model.AtomicNote{
		testNote("garden.md", 0, "Tomatoes need full sun to ripen"),
		testNote("garden.md", 1, "Mulch keeps the soil moist in summer"),
		testNote("work.md", 0, "Weekly planning happens on Monday mornings"),
	}
	entries := make([]Entry, len(notes))
	for i, n := range notes {
		entries[i] = NoteEntry(n)
	}
	if err := store.Upsert(ctx, KindNote, entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if count := store.Count(KindNote); count != 3 {
		t.Errorf("Count: got %d, want 3", count)
	}
	if count := store.Count(KindConcept); count != 0 {
		t.Errorf("concept Count: got %d, want 0", count)
	}

	// Upserting the same id replaces the entry.
	if err := store.Upsert(ctx, KindNote, entries[:1]); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	if count := store.Count(KindNote); count != 3 {
		t.Errorf("Count after re-upsert: got %d, want 3", count)
	}

	// The limit is clamped to the collection size.
	results, err := store.Search(ctx, KindNote, "tomatoes need sun", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Search returned %d results, want 3", len(results))
	}
	if results[0].Entry.ID != notes[0].ID {
		t.Errorf("best match: got %s, want %s", results[0].Entry.ID, notes[0].ID)
	}
	for _, r := range results {
		if r.Kind != KindNote {
			t.Errorf("result kind: got %s", r.Kind)
		}
		if r.Similarity == 0 {
			t.Error("result has zero similarity")
		}
	}
}

func TestChromemStore_SearchWithFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.Upsert(ctx, KindNote, []Entry{
		NoteEntry(testNote("a.md", 0, "Process data in batches")),
		NoteEntry(testNote("b.md", 0, "Process data as a stream")),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	doc := "b.md"
	results, err := store.Search(ctx, KindNote, "process data", 10, &SearchFilter{DocumentID: &doc})
	if err != nil {
		t.Fatalf("Search with filter: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("filtered search returned %d results, want 1", len(results))
	}
	if results[0].Entry.Metadata.DocumentID != "b.md" {
		t.Errorf("expected document b.md, got %s", results[0].Entry.Metadata.DocumentID)
	}
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	results, err := newTestStore(t).Search(context.Background(), KindConcept, "anything", 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestChromemStore_HasAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c := model.DistilledConcept{
		ID:       "c1",
		Strategy: model.StrategyCluster,
		Theme:    "Growing tomatoes",
		Perspectives: []model.Perspective{
			{Statement: "Tomatoes need sun"},
			{Statement: "Growing tomatoes"},
		},
		Sources: []model.SourceRef{{NoteID: "n1"}, {NoteID: "n2"}},
	}
	if err := store.Upsert(ctx, KindConcept, []Entry{ConceptEntry(c)}); err != nil {
		t.Fatalf("Upsert concept: %v", err)
	}
	if !store.Has(ctx, KindConcept, "c1") {
		t.Fatal("expected c1 to be stored")
	}
	if store.Has(ctx, KindNote, "c1") {
		t.Error("c1 must not be in the notes collection")
	}

	results, err := store.Search(ctx, KindConcept, "tomatoes", 1, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Metadata.Sources != 2 {
		t.Fatalf("unexpected concept results: %+v", results)
	}
	if got := results[0].Entry.Content; got != "Growing tomatoes\n- Tomatoes need sun" {
		t.Errorf("concept content: got %q", got)
	}

	if err := store.Delete(ctx, KindConcept, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Has(ctx, KindConcept, "c1") {
		t.Error("c1 still stored after delete")
	}
	if err := store.Delete(ctx, KindConcept); err != nil {
		t.Errorf("Delete without ids: %v", err)
	}
}

func TestChromemStore_UnknownKind(t *testing.T) {
	store := newTestStore(t)
	if err := store.Upsert(context.Background(), Kind("bogus"), []Entry{{ID: "x", Content: "x"}}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestChromemStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	n := testNote("garden.md", 0, "persistent note about compost")
	n.CreatedAt = now
	if err := store.Upsert(ctx, KindNote, []Entry{NoteEntry(n)}); err != nil {
		t.Fatalf("Upsert note: %v", err)
	}
	c := model.DistilledConcept{ID: "c1", Strategy: model.StrategyGroup, Theme: "Compost", Sources: []model.SourceRef{{NoteID: n.ID}}}
	if err := store.Upsert(ctx, KindConcept, []Entry{ConceptEntry(c)}); err != nil {
		t.Fatalf("Upsert concept: %v", err)
	}

	dir := t.TempDir() + "/index"
	if err := store.Persist(ctx, dir); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	store2 := newTestStore(t)
	if err := store2.Load(ctx, dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store2.Count(KindNote) != 1 || store2.Count(KindConcept) != 1 {
		t.Fatalf("counts after load: notes=%d concepts=%d", store2.Count(KindNote), store2.Count(KindConcept))
	}

	results, err := store2.Search(ctx, KindNote, "compost", 1, nil)
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}
	md := results[0].Entry.Metadata
	if md.DocumentID != "garden.md" || md.NoteType != "idea" || !md.UpdatedAt.Equal(now) {
		t.Errorf("metadata not preserved: %+v", md)
	}

	// Loading from a directory without an index is not an error.
	if err := newTestStore(t).Load(ctx, t.TempDir()); err != nil {
		t.Errorf("Load from empty dir: %v", err)
	}
}

func TestFormatResults(t *testing.T) {
	results := []SearchResult{
		{
			Entry: Entry{
				ID:       "n_1",
				Content:  "Tomatoes need sun",
				Metadata: EntryMetadata{DocumentID: "garden.md", NoteType: "idea"},
			},
			Kind:       KindNote,
			Similarity: 0.9512,
		},
		{
			Entry: Entry{
				ID:       "c1",
				Content:  "Growing tomatoes",
				Metadata: EntryMetadata{Strategy: "group", Sources: 3},
			},
			Kind:       KindConcept,
			Similarity: 0.8,
		},
	}

	output := FormatResults(results)
	for _, want := range []string{"1. note n_1", "0.9512", "Document: garden.md", "2. concept c1", "Strategy: group, 3 source note(s)"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatResults_Empty(t *testing.T) {
	output := FormatResults(nil)
	if output != "No results found." {
		t.Errorf("expected 'No results found.', got: %s", output)
	}
}
