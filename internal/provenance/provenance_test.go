package provenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return store.New(database)
}

func putDoc(t *testing.T, s *store.Store, id, text string, notes ...string) []model.AtomicNote {
	t.Helper()
	ctx := context.Background()
	doc := model.RawDocument{ID: id, SourceType: "markdown", Text: text}
	require.NoError(t, s.PutDocument(ctx, doc))

	out := make([]model.AtomicNote, len(notes))
	for i, txt := range notes {
		out[i] = model.AtomicNote{
			ID:           model.NoteID(id, i),
			DocumentID:   id,
			DocumentHash: doc.Hash(),
			Position:     i,
			Text:         txt,
			Type:         model.NoteIdea,
			TextHash:     model.ContentHash(txt),
		}
	}
	_, err := s.PutNotes(ctx, id, doc.Hash(), out, true)
	require.NoError(t, err)
	return out
}

func TestTraceResolvesPinnedVersions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := putDoc(t, s, "a.md", "Tomatoes need sun.", "Tomatoes need sun.")
	b := putDoc(t, s, "b.md", "Give tomatoes sun. Water daily.", "Give tomatoes sun.", "Water daily.")

	c := &model.DistilledConcept{
		Strategy:    model.StrategyGroup,
		Theme:       "Tomatoes need sun.",
		Sources:     model.SourcesOf([]model.AtomicNote{a[0], b[0]}),
		Fingerprint: "fp",
	}
	require.NoError(t, s.PutConcept(ctx, c))

	// b.md is edited afterwards; the trace still shows what the concept was built from.
	putDoc(t, s, "b.md", "Tomatoes like shade.", "Tomatoes like shade.")

	g := New(s)
	tr, err := g.Trace(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, tr.Links, 2)
	assert.Equal(t, []string{"a.md", "b.md"}, tr.Documents)
	assert.Equal(t, "Give tomatoes sun.", tr.Links[1].Note.Text)
	assert.Equal(t, "Give tomatoes sun. Water daily.", tr.Links[1].Document.Text)

	current, err := s.GetNote(ctx, b[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes like shade.", current.Text)

	dangling, err := g.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, dangling)
}

func TestTraceMissingConcept(t *testing.T) {
	_, err := New(newStore(t)).Trace(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestVerifyReportsDanglingEdges(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := putDoc(t, s, "a.md", "one", "one")

	c := &model.DistilledConcept{
		Strategy:    model.StrategyGroup,
		Theme:       "one",
		Sources:     []model.SourceRef{{NoteID: a[0].ID, TextHash: "not-a-version"}},
		Fingerprint: "fp",
	}
	require.NoError(t, s.PutConcept(ctx, c))

	dangling, err := New(s).Verify(ctx)
	require.NoError(t, err)
	require.Len(t, dangling, 1)
	assert.Equal(t, c.ID, dangling[0].ConceptID)
	assert.Equal(t, "not-a-version", dangling[0].Source.TextHash)
}

func TestConceptsForDocument(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := putDoc(t, s, "a.md", "x", "alpha", "beta")
	b := putDoc(t, s, "b.md", "y", "gamma")

	older := &model.DistilledConcept{
		Strategy: model.StrategyCluster, Theme: "ab", Fingerprint: "f1",
		Sources:   model.SourcesOf([]model.AtomicNote{a[0], b[0]}),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := &model.DistilledConcept{
		Strategy: model.StrategyCluster, Theme: "a only", Fingerprint: "f2",
		Sources:   model.SourcesOf(a),
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.PutConcept(ctx, newer))
	require.NoError(t, s.PutConcept(ctx, older))

	g := New(s)
	got, err := g.ConceptsForDocument(ctx, "a.md")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ab", got[0].Theme)
	assert.Equal(t, "a only", got[1].Theme)

	got, err = g.ConceptsForDocument(ctx, "b.md")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = g.ConceptsForDocument(ctx, "missing.md")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormat(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := putDoc(t, s, "a.md", "Tomatoes need sun.", "Tomatoes need sun.")
	c := &model.DistilledConcept{
		Strategy:     model.StrategyCluster,
		Theme:        "Growing tomatoes",
		Perspectives: []model.Perspective{{Statement: "They need sun.", NoteIDs: []string{a[0].ID}}},
		Sources:      model.SourcesOf(a),
		Fingerprint:  "fp",
	}
	require.NoError(t, s.PutConcept(ctx, c))

	tr, err := New(s).Trace(ctx, c.ID)
	require.NoError(t, err)
	out := Format(tr)
	assert.Contains(t, out, "Theme: Growing tomatoes")
	assert.Contains(t, out, "  - They need sun.")
	assert.Contains(t, out, "1 note(s) from 1 document(s)")
	assert.Contains(t, out, a[0].ID+" [idea]")
	assert.Contains(t, out, "from a.md (a.md) version "+model.ContentHash("Tomatoes need sun.")[:12])
	assert.NotContains(t, out, "Superseded")
}
