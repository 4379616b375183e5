package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/distill/internal/cluster"
	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/distill"
	"github.com/ziadkadry99/distill/internal/extract"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/provenance"
	"github.com/ziadkadry99/distill/internal/source"
	"github.com/ziadkadry99/distill/internal/state"
	"github.com/ziadkadry99/distill/internal/store"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

// fakeService extracts canned notes keyed by chunk text.
type fakeService struct {
	mu     sync.Mutex
	notes  map[string][]extract.Candidate
	broken map[string]bool
	onCall func()
	calls  int
}

func (f *fakeService) Summarize(context.Context, model.RawDocument) (string, error) {
	return "", errors.New("single-chunk documents need no summary call")
}

func (f *fakeService) Extract(_ context.Context, req extract.Request) ([]extract.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.broken[req.Chunk] {
		return nil, fmt.Errorf("%w: reply was prose", model.ErrMalformedResponse)
	}
	return f.notes[req.Chunk], nil
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEmbedder returns fixed vectors keyed by text.
type fakeEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	fail  map[string]bool
	dims  int
	calls int
}

func (f *fakeEmbedder) Dimensions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dims
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[text] {
		return nil, fmt.Errorf("embedding failed after retries: %w", model.ErrTransientService)
	}
	v, ok := f.vecs[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Notes 0-2 are near duplicates (pairwise cosine > 0.99); the other nine
// are orthogonal to everything.
var noteTexts = []string{
	"Tomatoes need at least six hours of direct sun.",
	"Tomato plants must get six or more hours of sunlight daily.",
	"Give tomatoes a sunny spot with six hours of light.",
	"Quarterly taxes are due in April.",
	"Call the dentist to book a cleaning.",
	"Why do cats knead blankets?",
	"The train to Lisbon took nine hours.",
	"Backups should be tested monthly.",
	"Learn the basics of sourdough baking.",
	"My grandfather kept bees in the orchard.",
	"Which laptop has the best keyboard?",
	"Ask the landlord about the broken heater.",
}

var docNotes = map[string][]int{
	"a.md": {0, 3, 4, 5},
	"b.md": {1, 6, 7, 8},
	"c.md": {2, 9, 10, 11},
}

func docText(id string) string { return "Notes collected in " + id + " this week." }

func vectors() map[string][]float32 {
	out := map[string][]float32{}
	for i, text := range noteTexts {
		v := make([]float32, 12)
		switch i {
		case 0:
			v[0], v[1] = 1, 0.1
		case 1:
			v[0], v[2] = 1, 0.1
		case 2:
			v[0], v[1], v[2] = 1, 0.05, 0.05
		default:
			v[i] = 1
		}
		out[text] = v
	}
	return out
}

type harness struct {
	store   *store.Store
	tracker *state.Tracker
	svc     *fakeService
	emb     *fakeEmbedder
	src     source.Static
	p       *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := &harness{
		store:   store.New(database),
		tracker: state.NewTracker(database),
		svc:     &fakeService{notes: map[string][]extract.Candidate{}, broken: map[string]bool{}},
		emb:     &fakeEmbedder{vecs: vectors(), fail: map[string]bool{}},
	}
	for _, id := range []string{"a.md", "b.md", "c.md"} {
		var cands []extract.Candidate
		for _, i := range docNotes[id] {
			cands = append(cands, extract.Candidate{Text: noteTexts[i], Type: "idea"})
		}
		h.svc.notes[docText(id)] = cands
		h.src = append(h.src, model.RawDocument{ID: id, SourceType: "markdown", Text: docText(id)})
	}

	strategy, err := distill.New(model.StrategyGroup, nil, distill.DefaultOptions)
	require.NoError(t, err)
	h.p = New(h.store, h.tracker, extract.New(h.svc, extract.DefaultOptions), h.emb, strategy,
		Options{Workers: 3, Cluster: cluster.DefaultOptions})
	return h
}

func (h *harness) run(t *testing.T) *Result {
	t.Helper()
	res, err := h.p.Run(context.Background(), h.src)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, res.Status)
	return res
}

func TestNearDuplicatesCollapseIntoOneConcept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res := h.run(t)

	assert.Equal(t, 3, res.Documents)
	assert.Equal(t, 3, res.DocumentsIngested)
	assert.Equal(t, 12, res.NotesCreated)
	assert.Equal(t, 12, res.Embedded)
	assert.Equal(t, cluster.MethodAgglomerative, res.ClusterMethod)
	assert.Equal(t, 1, res.Clusters)
	assert.Equal(t, 9, res.Unclustered)
	assert.Equal(t, 1, res.ConceptsCreated)
	assert.Zero(t, res.ErrorCount)
	assert.Equal(t, 3, h.svc.callCount())
	assert.Equal(t, 12, h.emb.callCount())

	concepts, err := h.store.AllConcepts(ctx, false)
	require.NoError(t, err)
	require.Len(t, concepts, 1)
	c := concepts[0]
	assert.Equal(t, model.StrategyGroup, c.Strategy)
	assert.Equal(t, res.RunID, c.RunID)
	assert.ElementsMatch(t, []string{
		model.NoteID("a.md", 0), model.NoteID("b.md", 0), model.NoteID("c.md", 0),
	}, c.SourceNoteIDs())
	assert.Equal(t, model.NoteID("b.md", 0), c.AnchorNoteID)

	dangling, err := provenance.New(h.store).Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, dangling)

	trace, err := provenance.New(h.store).Trace(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, trace.Documents)
}

func TestRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.run(t)

	before, err := h.tracker.AllStates(ctx)
	require.NoError(t, err)
	extractCalls, embedCalls := h.svc.callCount(), h.emb.callCount()

	res := h.run(t)
	assert.Equal(t, 3, res.DocumentsSkipped)
	assert.Zero(t, res.DocumentsIngested)
	assert.Zero(t, res.NotesCreated)
	assert.Zero(t, res.Embedded)
	assert.Zero(t, res.ConceptsCreated)
	assert.Equal(t, 1, res.ConceptsReused)
	assert.Equal(t, extractCalls, h.svc.callCount())
	assert.Equal(t, embedCalls, h.emb.callCount())

	after, err := h.tracker.AllStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	n, err := h.store.CountConcepts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runs, err := h.store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestMalformedExtractionSkipsOnlyThatDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.svc.broken[docText("b.md")] = true

	res := h.run(t)
	assert.Equal(t, 1, res.DocumentsFailed)
	assert.Equal(t, 8, res.NotesCreated)
	// One call per healthy document, two for the broken one.
	assert.Equal(t, 4, h.svc.callCount())

	open, err := h.tracker.OpenErrors(ctx, state.ErrorFilter{DocumentID: "b.md"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.StageExtract, open[0].Stage)
	assert.Equal(t, "chunk:0", open[0].Unit)
	assert.Equal(t, model.KindMalformed, open[0].Kind)
	assert.True(t, open[0].Retryable)

	for _, doc := range h.src {
		pending, err := h.tracker.Pending(ctx, doc, model.StageExtract)
		require.NoError(t, err)
		assert.Equal(t, doc.ID == "b.md", pending, doc.ID)
	}

	// Tomatoes from a.md and c.md still form a concept.
	concepts, err := h.store.AllConcepts(ctx, false)
	require.NoError(t, err)
	require.Len(t, concepts, 1)
	first := concepts[0]
	assert.Len(t, first.Sources, 2)

	// Once the service recovers, the next run picks the document up and the
	// wider group replaces the earlier concept.
	delete(h.svc.broken, docText("b.md"))
	res = h.run(t)
	assert.Equal(t, 2, res.DocumentsSkipped)
	assert.Equal(t, 4, res.NotesCreated)
	assert.Equal(t, 1, res.ConceptsCreated)
	assert.Equal(t, 1, res.ConceptsSuperseded)

	open, err = h.tracker.OpenErrors(ctx, state.ErrorFilter{DocumentID: "b.md"})
	require.NoError(t, err)
	assert.Empty(t, open)

	old, err := h.store.GetConcept(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active())
}

func TestEmbeddingFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.emb.fail[noteTexts[4]] = true

	res := h.run(t)
	assert.Equal(t, 1, res.EmbedFailures)
	assert.Equal(t, 11, res.Embedded)
	assert.Equal(t, 1, res.ConceptsCreated)

	a := h.src[0]
	pending, err := h.tracker.Pending(ctx, a, model.StageExtract)
	require.NoError(t, err)
	assert.False(t, pending)
	pending, err = h.tracker.Pending(ctx, a, model.StageEmbed)
	require.NoError(t, err)
	assert.True(t, pending)

	open, err := h.tracker.OpenErrors(ctx, state.ErrorFilter{Stage: model.StageEmbed})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "note:"+model.NoteID("a.md", 2), open[0].Unit)
	assert.Equal(t, model.KindTransient, open[0].Kind)

	delete(h.emb.fail, noteTexts[4])
	calls := h.emb.callCount()
	extractCalls := h.svc.callCount()
	res = h.run(t)
	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, calls+1, h.emb.callCount())
	assert.Equal(t, extractCalls, h.svc.callCount())

	pending, err = h.tracker.Pending(ctx, a, model.StageEmbed)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestMismatchedVectorDoesNotStopClustering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.emb.vecs[noteTexts[7]] = []float32{1, 0, 0}
	bad := model.NoteID("b.md", 2)

	// The embedder reports no length, so the odd vector is stored and then
	// dropped before clustering, on every run until it is fixed.
	for i := 0; i < 2; i++ {
		res := h.run(t)
		assert.Equal(t, 1, res.ConceptsCreated+res.ConceptsReused, "run %d", i)
		assert.Equal(t, 1, res.EmbedFailures, "run %d", i)

		open, err := h.tracker.OpenErrors(ctx, state.ErrorFilter{Stage: model.StageEmbed})
		require.NoError(t, err)
		require.Len(t, open, 1, "run %d", i)
		assert.Equal(t, "note:"+bad, open[0].Unit)
		assert.Equal(t, "b.md", open[0].DocumentID)
		assert.Equal(t, model.KindMalformed, open[0].Kind)

		n, err := h.store.GetNote(ctx, bad)
		require.NoError(t, err)
		assert.Empty(t, n.Embedding, "run %d", i)
	}

	h.emb.vecs[noteTexts[7]] = vectors()[noteTexts[7]]
	calls := h.emb.callCount()
	res := h.run(t)
	assert.Equal(t, 1, res.Embedded)
	assert.Zero(t, res.EmbedFailures)
	assert.Equal(t, calls+1, h.emb.callCount())

	open, err := h.tracker.OpenErrors(ctx, state.ErrorFilter{Stage: model.StageEmbed})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestWrongLengthVectorIsNotStored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.emb.dims = 12
	h.emb.vecs[noteTexts[7]] = []float32{1, 0, 0}

	res := h.run(t)
	assert.Equal(t, 11, res.Embedded)
	assert.Equal(t, 1, res.EmbedFailures)
	assert.Equal(t, 1, res.ConceptsCreated)

	n, err := h.store.GetNote(ctx, model.NoteID("b.md", 2))
	require.NoError(t, err)
	assert.Empty(t, n.Embedding)

	pending, err := h.tracker.Pending(ctx, h.src[1], model.StageEmbed)
	require.NoError(t, err)
	assert.True(t, pending)

	open, err := h.tracker.OpenErrors(ctx, state.ErrorFilter{DocumentID: "b.md"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.StageEmbed, open[0].Stage)
	assert.Equal(t, model.KindMalformed, open[0].Kind)
}

func TestEmbeddingModelChangeReembeds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.p.opts.EmbeddingModel = "ollama/nomic-embed-text"
	h.run(t)
	extractCalls, embedCalls := h.svc.callCount(), h.emb.callCount()

	h.p.opts.EmbeddingModel = "ollama/mxbai-embed-large"
	res := h.run(t)
	assert.Equal(t, 12, res.Embedded)
	assert.Equal(t, embedCalls+12, h.emb.callCount())
	assert.Equal(t, extractCalls, h.svc.callCount())
	assert.Equal(t, 1, res.ConceptsReused)

	embedded, err := h.store.AllNotes(ctx, store.NoteFilter{EmbeddedOnly: true, EmbeddingModel: "ollama/mxbai-embed-large"})
	require.NoError(t, err)
	assert.Len(t, embedded, 12)

	res = h.run(t)
	assert.Zero(t, res.Embedded)
	assert.Equal(t, 3, res.DocumentsSkipped)
}

func TestCancelledRunResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t)
	h.p.opts.Workers = 1
	h.svc.onCall = cancel

	res, err := h.p.Run(ctx, h.src)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, store.RunCancelled, res.Status)
	assert.Equal(t, 1, h.svc.callCount())

	bg := context.Background()
	runs, err := h.store.RecentRuns(bg, 1)
	require.NoError(t, err)
	assert.Equal(t, store.RunCancelled, runs[0].Status)

	// Only a.md finished before the cancellation took effect.
	for _, doc := range h.src {
		pending, err := h.tracker.Pending(bg, doc, model.StageEmbed)
		require.NoError(t, err)
		assert.Equal(t, doc.ID != "a.md", pending, doc.ID)
	}

	h.svc.onCall = nil
	res = h.run(t)
	assert.Equal(t, 8, res.NotesCreated)
	assert.Equal(t, 3, h.svc.callCount())
	assert.Equal(t, 12, h.emb.callCount())
	assert.Equal(t, 1, res.ConceptsCreated)
}

func TestChangedDocumentIsReprocessed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.run(t)

	// c.md loses its last note.
	edited := "Notes collected in c.md, trimmed."
	h.svc.notes[edited] = h.svc.notes[docText("c.md")][:3]
	h.src[2].Text = edited

	res := h.run(t)
	assert.Equal(t, 1, res.DocumentsIngested)
	assert.Equal(t, 2, res.DocumentsSkipped)
	assert.Equal(t, 1, res.NotesRetired)
	assert.Zero(t, res.Embedded, "unchanged note texts keep their vectors")
	assert.Equal(t, 1, res.ConceptsReused)

	live, err := h.store.NotesForDocument(ctx, "c.md")
	require.NoError(t, err)
	assert.Len(t, live, 3)
}

func TestSearchIndexFollowsStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	idx, err := vectordb.NewChromemStore(func(ctx context.Context, text string) ([]float32, error) {
		return h.emb.EmbedText(ctx, text)
	})
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "index")
	h.p.opts.IndexDir = dir
	h.p.SetIndex(idx)

	h.run(t)
	assert.Equal(t, 12, idx.Count(vectordb.KindNote))
	assert.Equal(t, 1, idx.Count(vectordb.KindConcept))
	_, err = os.Stat(filepath.Join(dir, "chromem.gob.gz"))
	assert.NoError(t, err)

	results, err := idx.Search(ctx, vectordb.KindNote, noteTexts[0], 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, model.NoteID("a.md", 0), results[0].Entry.ID)

	// Concepts already indexed are not embedded again.
	calls := h.emb.callCount()
	h.run(t)
	assert.Equal(t, calls, h.emb.callCount())
}

func TestReadStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.emb.fail[noteTexts[11]] = true
	h.run(t)

	s, err := ReadStatus(ctx, h.store, h.tracker)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Documents)
	assert.Equal(t, 12, s.Notes)
	assert.Equal(t, 11, s.EmbeddedNotes)
	assert.Equal(t, 1, s.Concepts)
	assert.Equal(t, 1, s.ActiveConcepts)
	assert.Equal(t, 3, s.StagesComplete[model.StageExtract])
	assert.Equal(t, 2, s.StagesComplete[model.StageEmbed])
	assert.Equal(t, 1, s.OpenErrors)
	require.NotNil(t, s.LastRun)
	assert.Equal(t, store.RunCompleted, s.LastRun.Status)
}
