package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database)
}

func note(docID, docHash string, pos int, text string) model.AtomicNote {
	return model.AtomicNote{
		ID:           model.NoteID(docID, pos),
		DocumentID:   docID,
		DocumentHash: docHash,
		Position:     pos,
		Text:         text,
		Type:         model.NoteIdea,
		TextHash:     model.ContentHash(text),
	}
}

func TestDocumentVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v1 := model.RawDocument{ID: "a.md", SourceType: "markdown", Text: "first", Metadata: map[string]string{"path": "a.md"}}
	require.NoError(t, s.PutDocument(ctx, v1))

	got, err := s.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Text)
	assert.Equal(t, model.ContentHash("first"), got.ContentHash)
	assert.Equal(t, "a.md", got.Metadata["path"])

	v2 := v1
	v2.Text = "second"
	require.NoError(t, s.PutDocument(ctx, v2))

	got, err = s.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)

	old, err := s.GetDocumentVersion(ctx, "a.md", model.ContentHash("first"))
	require.NoError(t, err)
	assert.Equal(t, "first", old.Text)

	all, err := s.AllDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetDocument(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestPutNotesIdempotentAndRetires(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	doc := model.RawDocument{ID: "d", Text: "body"}
	require.NoError(t, s.PutDocument(ctx, doc))
	h := doc.Hash()

	notes := []model.AtomicNote{note("d", h, 0, "one"), note("d", h, 1, "two"), note("d", h, 2, "three")}
	stats, err := s.PutNotes(ctx, "d", h, notes, true)
	require.NoError(t, err)
	assert.Equal(t, NoteWriteStats{Created: 3}, stats)

	stats, err = s.PutNotes(ctx, "d", h, notes, true)
	require.NoError(t, err)
	assert.Equal(t, NoteWriteStats{Unchanged: 3}, stats)

	require.NoError(t, s.SetEmbedding(ctx, notes[0].ID, []float32{0.5, -1.25}, notes[0].TextHash))

	// A shorter re-extraction revises one note and retires the dropped one.
	revised := []model.AtomicNote{notes[0], note("d", h, 1, "two, revised")}
	stats, err = s.PutNotes(ctx, "d", h, revised, true)
	require.NoError(t, err)
	assert.Equal(t, NoteWriteStats{Unchanged: 1, Revised: 1, Retired: 1}, stats)

	live, err := s.NotesForDocument(ctx, "d")
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, []float32{0.5, -1.25}, live[0].Embedding)
	assert.False(t, live[0].NeedsEmbedding(""))
	assert.Equal(t, "two, revised", live[1].Text)

	all, err := s.AllNotes(ctx, NoteFilter{IncludeRetired: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	embedded, err := s.AllNotes(ctx, NoteFilter{EmbeddedOnly: true})
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	assert.Equal(t, notes[0].ID, embedded[0].ID)

	prior, err := s.GetNoteVersion(ctx, notes[1].ID, notes[1].TextHash)
	require.NoError(t, err)
	assert.Equal(t, "two", prior.Text)
}

func TestEmbeddingsFollowModel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	doc := model.RawDocument{ID: "d", Text: "body"}
	require.NoError(t, s.PutDocument(ctx, doc))
	h := doc.Hash()
	notes := []model.AtomicNote{note("d", h, 0, "one"), note("d", h, 1, "two")}
	_, err := s.PutNotes(ctx, "d", h, notes, true)
	require.NoError(t, err)

	const small = "nomic-embed-text"
	for _, n := range notes {
		require.NoError(t, s.SetEmbedding(ctx, n.ID, []float32{1, 0}, model.EmbeddingKey(n.TextHash, small)))
	}

	embedded, err := s.AllNotes(ctx, NoteFilter{EmbeddedOnly: true, EmbeddingModel: small})
	require.NoError(t, err)
	assert.Len(t, embedded, 2)
	stale, err := s.DocumentsNeedingEmbedding(ctx, small)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// Vectors from another model do not count.
	embedded, err = s.AllNotes(ctx, NoteFilter{EmbeddedOnly: true, EmbeddingModel: "mxbai-embed-large"})
	require.NoError(t, err)
	assert.Empty(t, embedded)
	stale, err = s.DocumentsNeedingEmbedding(ctx, "mxbai-embed-large")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"d": true}, stale)

	require.NoError(t, s.ClearEmbedding(ctx, notes[1].ID))
	cleared, err := s.GetNote(ctx, notes[1].ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Embedding)
	assert.True(t, cleared.NeedsEmbedding(small))

	embedded, err = s.AllNotes(ctx, NoteFilter{EmbeddedOnly: true, EmbeddingModel: small})
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	assert.Equal(t, notes[0].ID, embedded[0].ID)
	stale, err = s.DocumentsNeedingEmbedding(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"d": true}, stale)
}

func TestPutNotesRejectsForeignDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutDocument(ctx, model.RawDocument{ID: "d", Text: "x"}))

	_, err := s.PutNotes(ctx, "d", "h", []model.AtomicNote{note("other", "h", 0, "t")}, false)
	assert.True(t, errors.Is(err, model.ErrStoreWrite))
}

func TestConceptsAndSupersession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutDocument(ctx, model.RawDocument{ID: "d", Text: "x"}))
	notes := []model.AtomicNote{note("d", "h", 0, "alpha"), note("d", "h", 1, "beta")}
	_, err := s.PutNotes(ctx, "d", "h", notes, false)
	require.NoError(t, err)

	first := &model.DistilledConcept{
		Strategy:     model.StrategyCluster,
		Theme:        "letters",
		Perspectives: []model.Perspective{{Statement: "a", NoteIDs: []string{notes[0].ID}}},
		Sources:      []model.SourceRef{{NoteID: notes[0].ID}, {NoteID: notes[1].ID}},
		Fingerprint:  "fp1",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.PutConcept(ctx, first))
	require.NotEmpty(t, first.ID)
	assert.Equal(t, notes[1].TextHash, first.Sources[1].TextHash)

	dup := &model.DistilledConcept{Strategy: model.StrategyCluster, Theme: "dup", Sources: first.Sources, Fingerprint: "fp1"}
	assert.True(t, errors.Is(s.PutConcept(ctx, dup), model.ErrStoreWrite))

	second := &model.DistilledConcept{
		Strategy:    model.StrategyCluster,
		Theme:       "letters, again",
		Sources:     model.SourcesOf(notes[:1]),
		Fingerprint: "fp2",
		CreatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.PutConcept(ctx, second))
	require.NoError(t, s.Supersede(ctx, first.ID, second.ID))

	active, err := s.AllConcepts(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	everything, err := s.AllConcepts(ctx, true)
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	got, err := s.GetConcept(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.SupersededBy)
	assert.Equal(t, []string{notes[0].ID, notes[1].ID}, got.SourceNoteIDs())
	assert.Equal(t, "a", got.Perspectives[0].Statement)

	byFP, err := s.ConceptsByFingerprint(ctx, "fp1")
	require.NoError(t, err)
	assert.Len(t, byFP, 1)

	citing, err := s.ConceptsForNote(ctx, notes[0].ID)
	require.NoError(t, err)
	assert.Len(t, citing, 2)

	require.NoError(t, s.Reactivate(ctx, first.ID))
	got, err = s.GetConcept(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.StartRun(ctx, "r1", model.StrategyGroup))
	require.NoError(t, s.FinishRun(ctx, "r1", RunCompleted, map[string]int{"concepts_created": 2}))

	runs, err := s.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunCompleted, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.JSONEq(t, `{"concepts_created":2}`, string(runs[0].Stats))
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, decodeVector(nil))
}
