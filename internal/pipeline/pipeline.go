// Package pipeline runs the staged distillation pipeline. Ingest, extract
// and embed run per document and are tracked per document and stage, so an
// interrupted run resumes where it stopped. Clustering and distillation run
// afterwards over the whole embedded note population.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/distill/internal/cluster"
	"github.com/ziadkadry99/distill/internal/distill"
	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/progress"
	"github.com/ziadkadry99/distill/internal/source"
	"github.com/ziadkadry99/distill/internal/state"
	"github.com/ziadkadry99/distill/internal/store"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

// Options configures a Pipeline.
type Options struct {
	// Workers bounds concurrent extraction and embedding work.
	Workers int
	Cluster cluster.Options
	// IndexDir is where the search index is persisted. Empty keeps it in memory.
	IndexDir string
	// EmbeddingModel tags stored vectors. Changing it re-embeds every note.
	EmbeddingModel string
}

// Pipeline orchestrates a run: ingest -> extract -> embed -> cluster -> distill.
type Pipeline struct {
	store     *store.Store
	tracker   *state.Tracker
	extractor Extractor
	embedder  TextEmbedder
	strategy  distill.Strategy
	index     vectordb.VectorStore
	reporter  progress.Reporter
	opts      Options
	newRunID  func() string
}

// New creates a Pipeline.
func New(
	st *store.Store,
	tracker *state.Tracker,
	extractor Extractor,
	embedder TextEmbedder,
	strategy distill.Strategy,
	opts Options,
) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{
		store:     st,
		tracker:   tracker,
		extractor: extractor,
		embedder:  embedder,
		strategy:  strategy,
		reporter:  progress.Nop{},
		opts:      opts,
		newRunID:  func() string { return uuid.New().String() },
	}
}

// SetIndex sets the search index refreshed at the end of each run.
func (p *Pipeline) SetIndex(idx vectordb.VectorStore) {
	p.index = idx
}

// SetReporter sets the progress reporter.
func (p *Pipeline) SetReporter(r progress.Reporter) {
	if r == nil {
		r = progress.Nop{}
	}
	p.reporter = r
}

// Run executes one pipeline run over the documents of src. Failures of
// single units are recorded and counted in the result; the returned error
// is reserved for cancellation and failures that stop the whole run.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (*Result, error) {
	start := time.Now()
	runID := p.newRunID()
	res := &Result{RunID: runID, Status: store.RunRunning}

	if err := p.store.StartRun(ctx, runID, p.strategy.Name()); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	tracker := p.tracker.ForRun(runID)

	err := p.run(ctx, src, tracker, res)
	res.Duration = time.Since(start)
	switch {
	case err == nil:
		res.Status = store.RunCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Status = store.RunCancelled
	default:
		res.Status = store.RunFailed
	}

	if ferr := p.store.FinishRun(context.WithoutCancel(ctx), runID, res.Status, res); ferr != nil {
		logger.Error("recording run result", "run", runID, "err", ferr)
	}
	logger.Info("run finished", "run", runID, "status", res.Status, "duration", res.Duration,
		"notes_created", res.NotesCreated, "concepts_created", res.ConceptsCreated, "errors", res.ErrorCount)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, src source.Source, tracker *state.Tracker, res *Result) error {
	docs, err := src.Documents(ctx)
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}
	res.Documents = len(docs)

	jobs, err := p.ingest(ctx, tracker, docs, res)
	if err != nil {
		return err
	}
	if err := p.process(ctx, tracker, jobs, res); err != nil {
		return err
	}
	if err := p.distill(ctx, tracker, res); err != nil {
		return err
	}
	if err := p.reindex(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("refreshing search index", "err", err)
	}
	return nil
}

// ingest stores new and changed documents and returns the documents that
// still have per-document work pending.
func (p *Pipeline) ingest(ctx context.Context, tracker *state.Tracker, docs []model.RawDocument, res *Result) ([]job, error) {
	// Documents whose vectors were dropped or came from another model.
	stale, err := p.store.DocumentsNeedingEmbedding(ctx, p.opts.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	var jobs []job
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed, err := tracker.ShouldProcess(ctx, doc)
		if err != nil {
			return nil, err
		}
		if changed {
			if err := p.store.PutDocument(ctx, doc); err != nil {
				p.fail(ctx, tracker, res, &model.UnitError{Stage: model.StageIngest, DocumentID: doc.ID, Err: err}, doc)
				res.DocumentsFailed++
				continue
			}
			if err := tracker.MarkComplete(ctx, doc, model.StageIngest); err != nil {
				return nil, err
			}
			res.DocumentsIngested++
		}

		needExtract, err := tracker.Pending(ctx, doc, model.StageExtract)
		if err != nil {
			return nil, err
		}
		needEmbed, err := tracker.Pending(ctx, doc, model.StageEmbed)
		if err != nil {
			return nil, err
		}
		if !needExtract && !needEmbed && !stale[doc.ID] {
			res.DocumentsSkipped++
			continue
		}

		notes, err := p.store.NotesForDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		stored := make(map[string]model.AtomicNote, len(notes))
		for _, n := range notes {
			stored[n.ID] = n
		}
		jobs = append(jobs, job{doc: doc, needExtract: needExtract, stored: stored})
	}
	return jobs, nil
}

// process runs extraction and embedding for each job on a bounded worker
// pool. Workers only compute; every write goes through one writer.
func (p *Pipeline) process(ctx context.Context, tracker *state.Tracker, jobs []job, res *Result) error {
	if len(jobs) == 0 {
		return nil
	}
	p.reporter.Start("extract+embed", len(jobs))
	defer p.reporter.Finish()

	results := make(chan docResult)
	written := make(chan struct{})
	go func() {
		defer close(written)
		// Finished work is written even if the run is being cancelled.
		wctx := context.WithoutCancel(ctx)
		n := 0
		for r := range results {
			n++
			p.apply(wctx, tracker, r, res)
			p.reporter.Update(n, r.job.doc.ID)
		}
	}()

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	var stopped error
	for _, j := range jobs {
		// Cancellation takes effect between documents.
		if err := ctx.Err(); err != nil {
			stopped = err
			break
		}
		g.Go(func() error {
			results <- p.work(ctx, j)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-written

	if stopped != nil {
		return stopped
	}
	return ctx.Err()
}

// work extracts a document if needed and embeds every note whose stored
// vector does not match its text.
func (p *Pipeline) work(ctx context.Context, j job) docResult {
	r := docResult{job: j, vectors: map[string][]float32{}}

	if j.needExtract {
		ex, err := p.extractor.Extract(ctx, j.doc)
		if err != nil {
			r.err = err
			return r
		}
		r.extracted = ex
		r.notes = ex.Notes
		r.failures = append(r.failures, ex.Failed...)
	} else {
		for _, n := range j.stored {
			r.notes = append(r.notes, n)
		}
		sort.Slice(r.notes, func(a, b int) bool { return r.notes[a].Position < r.notes[b].Position })
	}

	for _, n := range r.notes {
		if old, ok := j.stored[n.ID]; ok && old.TextHash == n.TextHash && !old.NeedsEmbedding(p.opts.EmbeddingModel) {
			continue
		}
		vec, err := p.embedder.EmbedText(ctx, n.Text)
		if err == nil {
			if want := p.dimensions(); want > 0 && len(vec) != want {
				err = fmt.Errorf("%w: %d dimensions, want %d", model.ErrMalformedResponse, len(vec), want)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				r.err = ctx.Err()
				return r
			}
			logger.Warn("embedding failed", "doc", j.doc.ID, "note", n.ID, "err", err)
			r.failures = append(r.failures, &model.UnitError{
				Stage:      model.StageEmbed,
				DocumentID: j.doc.ID,
				Unit:       "note:" + n.ID,
				Err:        err,
			})
			continue
		}
		r.vectors[n.ID] = vec
	}
	return r
}

// apply writes one worker result and advances the document's stages.
func (p *Pipeline) apply(ctx context.Context, tracker *state.Tracker, r docResult, res *Result) {
	doc := r.job.doc
	if r.err != nil {
		// Cancelled mid-document: nothing is written and the stages stay pending.
		logger.Debug("document interrupted", "doc", doc.ID, "err", r.err)
		return
	}

	if r.extracted != nil {
		stats, err := p.store.PutNotes(ctx, doc.ID, doc.Hash(), r.notes, r.extracted.Complete())
		if err != nil {
			p.fail(ctx, tracker, res, &model.UnitError{Stage: model.StageExtract, DocumentID: doc.ID, Err: err}, doc)
			res.DocumentsFailed++
			return
		}
		res.NotesCreated += stats.Created
		res.NotesRevised += stats.Revised
		res.NotesRetired += stats.Retired
	}

	extractOK := r.extracted == nil || r.extracted.Complete()
	embedOK := true
	for _, n := range r.notes {
		vec, ok := r.vectors[n.ID]
		if !ok {
			continue
		}
		if err := p.store.SetEmbedding(ctx, n.ID, vec, model.EmbeddingKey(n.TextHash, p.opts.EmbeddingModel)); err != nil {
			p.fail(ctx, tracker, res, &model.UnitError{Stage: model.StageEmbed, DocumentID: doc.ID, Unit: "note:" + n.ID, Err: err}, doc)
			embedOK = false
			continue
		}
		res.Embedded++
	}
	for _, ue := range r.failures {
		p.fail(ctx, tracker, res, ue, doc)
		if ue.Stage == model.StageEmbed {
			res.EmbedFailures++
			embedOK = false
		}
	}

	if r.extracted != nil && extractOK {
		if err := tracker.MarkComplete(ctx, doc, model.StageExtract); err != nil {
			logger.Error("marking extract complete", "doc", doc.ID, "err", err)
			extractOK = false
		}
	}
	if extractOK && embedOK {
		if err := tracker.MarkComplete(ctx, doc, model.StageEmbed); err != nil {
			logger.Error("marking embed complete", "doc", doc.ID, "err", err)
			embedOK = false
		}
	}
	if !extractOK || !embedOK {
		res.DocumentsFailed++
	}
}

// distill clusters every embedded live note and distills the clusters.
func (p *Pipeline) distill(ctx context.Context, tracker *state.Tracker, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	notes, err := p.store.AllNotes(ctx, store.NoteFilter{EmbeddedOnly: true, EmbeddingModel: p.opts.EmbeddingModel})
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	notes = p.dropMismatched(ctx, tracker, res, notes)

	part, err := cluster.New(p.opts.Cluster).Cluster(notes)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			res.fail(&model.UnitError{Stage: model.StageDistill, Unit: "clustering", Err: err})
			logger.Warn("skipping distillation", "err", err)
			return nil
		}
		return fmt.Errorf("cluster notes: %w", err)
	}
	res.ClusterMethod = part.Method
	res.Clusters = len(part.Clusters)
	res.Unclustered = len(part.Unclustered)

	d := distill.NewDistiller(p.strategy, p.store, tracker, res.RunID)
	out, err := d.Run(ctx, part.Clusters)
	if out != nil {
		res.Units = out.Units
		res.ConceptsCreated = len(out.Created)
		res.ConceptsReused = out.Reused
		res.ConceptsSuperseded = out.Superseded
		for _, ue := range out.Failed {
			res.fail(ue)
		}
	}
	return err
}

// dimensions is the vector length the embedder reports, or 0 when it does
// not know.
func (p *Pipeline) dimensions() int {
	if d, ok := p.embedder.(interface{ Dimensions() int }); ok {
		return d.Dimensions()
	}
	return 0
}

// dropMismatched removes notes whose vector length differs from the
// embedder's, or from the most common length when the embedder does not
// report one. Dropped notes lose their vector and are embedded again on
// the next run; one bad reply must not stop every later clustering.
func (p *Pipeline) dropMismatched(ctx context.Context, tracker *state.Tracker, res *Result, notes []model.AtomicNote) []model.AtomicNote {
	want := p.dimensions()
	if want <= 0 {
		want = commonLength(notes)
	}
	kept := notes[:0]
	for _, n := range notes {
		if len(n.Embedding) == want {
			kept = append(kept, n)
			continue
		}
		ue := &model.UnitError{
			Stage:      model.StageEmbed,
			DocumentID: n.DocumentID,
			Unit:       "note:" + n.ID,
			Err:        fmt.Errorf("%w: %d dimensions, want %d", model.ErrMalformedResponse, len(n.Embedding), want),
		}
		logger.Warn("dropping embedding", "note", n.ID, "dimensions", len(n.Embedding), "want", want)
		res.fail(ue)
		res.EmbedFailures++
		if err := tracker.RecordError(ctx, ue, n.DocumentHash); err != nil {
			logger.Error("recording unit error", "doc", n.DocumentID, "stage", ue.Stage, "err", err)
		}
		if err := p.store.ClearEmbedding(ctx, n.ID); err != nil {
			logger.Error("clearing embedding", "note", n.ID, "err", err)
		}
	}
	return kept
}

// commonLength returns the most frequent vector length, preferring the
// longer one on ties.
func commonLength(notes []model.AtomicNote) int {
	counts := map[int]int{}
	best := 0
	for _, n := range notes {
		l := len(n.Embedding)
		counts[l]++
		if counts[l] > counts[best] || (counts[l] == counts[best] && l > best) {
			best = l
		}
	}
	return best
}

func (p *Pipeline) fail(ctx context.Context, tracker *state.Tracker, res *Result, ue *model.UnitError, doc model.RawDocument) {
	res.fail(ue)
	if err := tracker.RecordError(ctx, ue, doc.Hash()); err != nil {
		logger.Error("recording unit error", "doc", doc.ID, "stage", ue.Stage, "err", err)
	}
}
