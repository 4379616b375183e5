package pipeline

import (
	"context"
	"time"

	"github.com/ziadkadry99/distill/internal/cluster"
	"github.com/ziadkadry99/distill/internal/extract"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/store"
)

// Extractor turns one document into atomic notes.
type Extractor interface {
	Extract(ctx context.Context, doc model.RawDocument) (*extract.Result, error)
}

// TextEmbedder maps one text to a fixed-length vector.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Result summarizes one run. It is stored as the run's stats.
type Result struct {
	RunID  string          `json:"run_id"`
	Status store.RunStatus `json:"status"`

	Documents         int `json:"documents"`
	DocumentsIngested int `json:"documents_ingested"`
	DocumentsSkipped  int `json:"documents_skipped"`
	DocumentsFailed   int `json:"documents_failed"`

	NotesCreated  int `json:"notes_created"`
	NotesRevised  int `json:"notes_revised"`
	NotesRetired  int `json:"notes_retired"`
	Embedded      int `json:"embedded"`
	EmbedFailures int `json:"embed_failures"`

	ClusterMethod cluster.Method `json:"cluster_method,omitempty"`
	Clusters      int            `json:"clusters"`
	Unclustered   int            `json:"unclustered"`

	Units              int `json:"units"`
	ConceptsCreated    int `json:"concepts_created"`
	ConceptsReused     int `json:"concepts_reused"`
	ConceptsSuperseded int `json:"concepts_superseded"`

	ErrorCount int                `json:"errors"`
	Errors     []*model.UnitError `json:"-"`

	Duration time.Duration `json:"duration_ns"`
}

func (r *Result) fail(ue *model.UnitError) {
	r.Errors = append(r.Errors, ue)
	r.ErrorCount = len(r.Errors)
}

// job is one document's pending per-document work.
type job struct {
	doc         model.RawDocument
	needExtract bool
	// stored holds the document's live notes before this run, by id.
	stored map[string]model.AtomicNote
}

// docResult is what a worker computed for one document. It is applied by
// the single writer.
type docResult struct {
	job       job
	extracted *extract.Result
	notes     []model.AtomicNote
	vectors   map[string][]float32
	failures  []*model.UnitError
	err       error
}
