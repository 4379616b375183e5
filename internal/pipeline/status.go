package pipeline

import (
	"context"

	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/state"
	"github.com/ziadkadry99/distill/internal/store"
)

// Status is a snapshot of what the store holds and how far documents got.
type Status struct {
	Documents      int                 `json:"documents"`
	Notes          int                 `json:"notes"`
	EmbeddedNotes  int                 `json:"embedded_notes"`
	Concepts       int                 `json:"concepts"`
	ActiveConcepts int                 `json:"active_concepts"`
	StagesComplete map[model.Stage]int `json:"stages_complete"`
	OpenErrors     int                 `json:"open_errors"`
	LastRun        *store.Run          `json:"last_run,omitempty"`
}

// ReadStatus collects a Status.
func ReadStatus(ctx context.Context, st *store.Store, tracker *state.Tracker) (*Status, error) {
	var (
		s   = &Status{StagesComplete: map[model.Stage]int{}}
		err error
	)
	if s.Documents, err = st.CountDocuments(ctx); err != nil {
		return nil, err
	}
	notes, err := st.AllNotes(ctx, store.NoteFilter{})
	if err != nil {
		return nil, err
	}
	s.Notes = len(notes)
	for _, n := range notes {
		if n.HasEmbedding() {
			s.EmbeddedNotes++
		}
	}
	if s.Concepts, err = st.CountConcepts(ctx); err != nil {
		return nil, err
	}
	active, err := st.AllConcepts(ctx, false)
	if err != nil {
		return nil, err
	}
	s.ActiveConcepts = len(active)

	for _, stage := range model.DocumentStages {
		if s.StagesComplete[stage], err = tracker.CompletedCount(ctx, stage); err != nil {
			return nil, err
		}
	}
	if s.OpenErrors, err = tracker.OpenErrorCount(ctx); err != nil {
		return nil, err
	}

	runs, err := st.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		s.LastRun = &runs[0]
	}
	return s, nil
}
