package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/pipeline"
	"github.com/ziadkadry99/distill/internal/state"
	"github.com/ziadkadry99/distill/internal/store"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

// mockIndex implements vectordb.VectorStore for testing.
type mockIndex struct {
	entries map[vectordb.Kind][]vectordb.Entry
}

func (m *mockIndex) Upsert(_ context.Context, kind vectordb.Kind, entries []vectordb.Entry) error {
	if m.entries == nil {
		m.entries = map[vectordb.Kind][]vectordb.Entry{}
	}
	m.entries[kind] = append(m.entries[kind], entries...)
	return nil
}

func (m *mockIndex) Search(_ context.Context, kind vectordb.Kind, _ string, limit int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	var results []vectordb.SearchResult
	for _, e := range m.entries[kind] {
		if filter != nil && filter.Strategy != nil && e.Metadata.Strategy != *filter.Strategy {
			continue
		}
		results = append(results, vectordb.SearchResult{Entry: e, Kind: kind, Similarity: 0.95})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *mockIndex) Has(_ context.Context, kind vectordb.Kind, id string) bool {
	for _, e := range m.entries[kind] {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (m *mockIndex) Delete(_ context.Context, _ vectordb.Kind, _ ...string) error { return nil }
func (m *mockIndex) Persist(_ context.Context, _ string) error                    { return nil }
func (m *mockIndex) Load(_ context.Context, _ string) error                       { return nil }
func (m *mockIndex) Count(kind vectordb.Kind) int                                 { return len(m.entries[kind]) }

// fixture is a store holding one document with two notes and one concept.
type fixture struct {
	store   *store.Store
	tracker *state.Tracker
	concept *model.DistilledConcept
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	st := store.New(database)
	doc := model.RawDocument{ID: "garden.md", SourceType: "markdown", Title: "Garden", Text: "Tomatoes need sun. Tomatoes love sunlight."}
	if err := st.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	var notes []model.AtomicNote
	for i, text := range []string{"Tomatoes need sun.", "Tomatoes love sunlight."} {
		notes = append(notes, model.AtomicNote{
			ID:           model.NoteID(doc.ID, i),
			DocumentID:   doc.ID,
			DocumentHash: doc.Hash(),
			Position:     i,
			Text:         text,
			Type:         model.NoteIdea,
			TextHash:     model.ContentHash(text),
		})
	}
	if _, err := st.PutNotes(ctx, doc.ID, doc.Hash(), notes, true); err != nil {
		t.Fatalf("PutNotes: %v", err)
	}

	c := &model.DistilledConcept{
		Strategy:     model.StrategyGroup,
		Theme:        "Tomatoes need sun.",
		AnchorNoteID: notes[0].ID,
		Sources:      model.SourcesOf(notes),
		Fingerprint:  model.Fingerprint(model.StrategyGroup, notes),
	}
	if err := st.PutConcept(ctx, c); err != nil {
		t.Fatalf("PutConcept: %v", err)
	}
	return &fixture{store: st, tracker: state.NewTracker(database), concept: c}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", result.Content[0])
	}
	return tc.Text
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		wantName string
	}{
		{searchConceptsTool, "search_concepts"},
		{getConceptTool, "get_concept"},
		{traceProvenanceTool, "trace_provenance"},
		{documentConceptsTool, "document_concepts"},
		{pipelineStatusTool, "pipeline_status"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	f := newFixture(t)
	idx := &mockIndex{}
	srv := NewServer(f.store, f.tracker, idx)

	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.index != idx {
		t.Error("index not set correctly")
	}
	if srv.graph == nil {
		t.Error("provenance graph not initialized")
	}
}

func TestHandleSearchConcepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	idx := &mockIndex{}
	_ = idx.Upsert(ctx, vectordb.KindConcept, []vectordb.Entry{vectordb.ConceptEntry(*f.concept)})
	srv := NewServer(f.store, f.tracker, idx)

	t.Run("concepts", func(t *testing.T) {
		result, err := srv.handleSearchConcepts(ctx, call(map[string]any{"query": "sunlight"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		if out := textOf(t, result); !strings.Contains(out, f.concept.ID) {
			t.Errorf("result missing concept id:\n%s", out)
		}
	})

	t.Run("strategy filter", func(t *testing.T) {
		result, err := srv.handleSearchConcepts(ctx, call(map[string]any{"query": "sun", "strategy": "cluster"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out := textOf(t, result); out != notIndexed {
			t.Errorf("expected no results, got:\n%s", out)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		result, err := srv.handleSearchConcepts(ctx, call(map[string]any{"query": "sun", "kind": "documents"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for unknown kind")
		}
	})

	t.Run("missing query", func(t *testing.T) {
		result, err := srv.handleSearchConcepts(ctx, call(map[string]any{}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})

	t.Run("no index", func(t *testing.T) {
		bare := NewServer(f.store, f.tracker, nil)
		result, err := bare.handleSearchConcepts(ctx, call(map[string]any{"query": "anything"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Error("empty results should not be an error")
		}
	})
}

func TestHandleGetConcept(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.store, f.tracker, nil)
	ctx := context.Background()

	result, err := srv.handleGetConcept(ctx, call(map[string]any{"id": f.concept.ID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got model.DistilledConcept
	if err := json.Unmarshal([]byte(textOf(t, result)), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Theme != f.concept.Theme || len(got.Sources) != 2 {
		t.Errorf("got %+v", got)
	}

	result, err = srv.handleGetConcept(ctx, call(map[string]any{"id": "missing"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(textOf(t, result), "No concept") {
		t.Errorf("expected not-found tool error, got %v", result.Content)
	}
}

func TestHandleTraceProvenance(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.store, f.tracker, nil)
	ctx := context.Background()

	result, err := srv.handleTraceProvenance(ctx, call(map[string]any{"concept_id": f.concept.ID}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}
	out := textOf(t, result)
	for _, want := range []string{"Tomatoes love sunlight.", "from garden.md (Garden)", "2 note(s) from 1 document(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace missing %q:\n%s", want, out)
		}
	}

	result, err = srv.handleTraceProvenance(ctx, call(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing concept_id")
	}
}

func TestHandleDocumentConcepts(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.store, f.tracker, nil)
	ctx := context.Background()

	result, err := srv.handleDocumentConcepts(ctx, call(map[string]any{"document_id": "garden.md"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := textOf(t, result); !strings.Contains(out, "1 concept(s) cite garden.md") {
		t.Errorf("unexpected output:\n%s", out)
	}

	result, err = srv.handleDocumentConcepts(ctx, call(map[string]any{"document_id": "other.md"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := textOf(t, result); out != "No concepts cite other.md." {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestHandlePipelineStatus(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.store, f.tracker, nil)

	result, err := srv.handlePipelineStatus(context.Background(), call(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st pipeline.Status
	if err := json.Unmarshal([]byte(textOf(t, result)), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Documents != 1 || st.Notes != 2 || st.ActiveConcepts != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.EmbeddedNotes != 0 {
		t.Errorf("embedded notes = %d, want 0", st.EmbeddedNotes)
	}
}
