package state

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/model"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewTracker(database)
}

func TestShouldProcess(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	doc := model.RawDocument{ID: "a.md", Text: "hello"}

	ok, err := tr.ShouldProcess(ctx, doc)
	require.NoError(t, err)
	assert.True(t, ok, "unknown document must be processed")

	require.NoError(t, tr.MarkComplete(ctx, doc, model.StageIngest))
	ok, err = tr.ShouldProcess(ctx, doc)
	require.NoError(t, err)
	assert.False(t, ok, "unchanged document must be skipped")

	changed := doc
	changed.Text = "hello, world"
	ok, err = tr.ShouldProcess(ctx, changed)
	require.NoError(t, err)
	assert.True(t, ok, "changed content must be reprocessed")
}

func TestStagesResumeIndependently(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	doc := model.RawDocument{ID: "a.md", Text: "v1"}

	require.NoError(t, tr.MarkComplete(ctx, doc, model.StageIngest))
	require.NoError(t, tr.MarkComplete(ctx, doc, model.StageExtract))

	pending, err := tr.Pending(ctx, doc, model.StageExtract)
	require.NoError(t, err)
	assert.False(t, pending)

	pending, err = tr.Pending(ctx, doc, model.StageEmbed)
	require.NoError(t, err)
	assert.True(t, pending, "embed never completed")

	// New content invalidates every stage, but the old completions are
	// only superseded, not rolled back.
	v2 := model.RawDocument{ID: "a.md", Text: "v2"}
	require.NoError(t, tr.MarkComplete(ctx, v2, model.StageIngest))
	pending, err = tr.Pending(ctx, v2, model.StageExtract)
	require.NoError(t, err)
	assert.True(t, pending)

	st, err := tr.Load(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.StageDone(model.StageIngest))
	assert.False(t, st.StageDone(model.StageExtract))
	assert.Equal(t, doc.Hash(), st.Completed[model.StageExtract])

	n, err := tr.CompletedCount(ctx, model.StageIngest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = tr.CompletedCount(ctx, model.StageExtract)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordAndResolveErrors(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t).ForRun("run-1")
	doc := model.RawDocument{ID: "b.md", Text: "text"}

	ue := &model.UnitError{
		Stage:      model.StageExtract,
		DocumentID: doc.ID,
		Unit:       "chunk-0",
		Err:        fmt.Errorf("parsing: %w", model.ErrMalformedResponse),
	}
	require.NoError(t, tr.RecordError(ctx, ue, doc.Hash()))

	open, err := tr.OpenErrors(ctx, ErrorFilter{DocumentID: doc.ID})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.KindMalformed, open[0].Kind)
	assert.True(t, open[0].Retryable)
	assert.Equal(t, "run-1", open[0].RunID)
	assert.Equal(t, "chunk-0", open[0].Unit)

	require.NoError(t, tr.MarkComplete(ctx, doc, model.StageExtract))
	n, err := tr.OpenErrorCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	distillErr := &model.UnitError{Stage: model.StageDistill, Unit: "unit:abc", Err: model.ErrTransientService}
	require.NoError(t, tr.RecordError(ctx, distillErr, ""))
	require.NoError(t, tr.ResolveUnit(ctx, model.StageDistill, "unit:abc"))
	n, err = tr.OpenErrorCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAllStates(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	for _, id := range []string{"b", "a"} {
		require.NoError(t, tr.MarkComplete(ctx, model.RawDocument{ID: id, Text: id}, model.StageIngest))
	}
	states, err := tr.AllStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "a", states[0].DocumentID)
}
