package pipeline

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/distill/internal/store"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

// reindex brings the search index in line with the store: live embedded
// notes and active concepts are searchable, everything else is removed.
// Notes reuse their stored vectors; only concepts new to the index are
// embedded.
func (p *Pipeline) reindex(ctx context.Context) error {
	if p.index == nil {
		return nil
	}

	notes, err := p.store.AllNotes(ctx, store.NoteFilter{IncludeRetired: true})
	if err != nil {
		return err
	}
	var (
		live  []vectordb.Entry
		stale []string
	)
	for _, n := range notes {
		if n.Retired() || n.NeedsEmbedding(p.opts.EmbeddingModel) {
			stale = append(stale, n.ID)
			continue
		}
		live = append(live, vectordb.NoteEntry(n))
	}
	if err := p.index.Delete(ctx, vectordb.KindNote, stale...); err != nil {
		return fmt.Errorf("remove stale notes: %w", err)
	}
	if err := p.index.Upsert(ctx, vectordb.KindNote, live); err != nil {
		return fmt.Errorf("index notes: %w", err)
	}

	concepts, err := p.store.AllConcepts(ctx, true)
	if err != nil {
		return err
	}
	var (
		added      []vectordb.Entry
		superseded []string
	)
	for _, c := range concepts {
		switch {
		case !c.Active():
			superseded = append(superseded, c.ID)
		case !p.index.Has(ctx, vectordb.KindConcept, c.ID):
			added = append(added, vectordb.ConceptEntry(c))
		}
	}
	if err := p.index.Delete(ctx, vectordb.KindConcept, superseded...); err != nil {
		return fmt.Errorf("remove superseded concepts: %w", err)
	}
	if err := p.index.Upsert(ctx, vectordb.KindConcept, added); err != nil {
		return fmt.Errorf("index concepts: %w", err)
	}

	if p.opts.IndexDir == "" {
		return nil
	}
	return p.index.Persist(ctx, p.opts.IndexDir)
}
