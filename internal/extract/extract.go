// Package extract turns raw documents into atomic notes.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ziadkadry99/distill/internal/chunk"
	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
)

// Candidate is one note proposed by the extraction service.
type Candidate struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Request is one chunk-level extraction call.
type Request struct {
	Title    string
	Summary  string
	Chunk    string
	Index    int
	Total    int
	Previous []string // notes already taken from earlier chunks
	MaxNotes int
	// Strict asks for the tightened instruction used after a malformed reply.
	Strict bool
}

// Service is the external extraction service. Extract must wrap
// unparsable replies in model.ErrMalformedResponse.
type Service interface {
	Summarize(ctx context.Context, doc model.RawDocument) (string, error)
	Extract(ctx context.Context, req Request) ([]Candidate, error)
}

// Options tune extraction.
type Options struct {
	ChunkWords       int
	MaxNotesPerChunk int
	// DedupThreshold is the word-set Jaccard similarity at which two notes
	// of one document are considered the same.
	DedupThreshold float64
}

// DefaultOptions match the configuration defaults.
var DefaultOptions = Options{ChunkWords: 300, MaxNotesPerChunk: 5, DedupThreshold: 0.9}

// Result is the outcome of extracting one document.
type Result struct {
	Notes  []model.AtomicNote
	Chunks int
	Failed []*model.UnitError
}

// Complete reports whether every chunk was extracted.
func (r *Result) Complete() bool { return len(r.Failed) == 0 }

// Extractor chunks documents and asks a Service for atomic notes.
type Extractor struct {
	svc  Service
	opts Options
}

// New returns an Extractor. Zero option fields take their defaults.
func New(svc Service, opts Options) *Extractor {
	if opts.ChunkWords <= 0 {
		opts.ChunkWords = DefaultOptions.ChunkWords
	}
	if opts.MaxNotesPerChunk <= 0 {
		opts.MaxNotesPerChunk = DefaultOptions.MaxNotesPerChunk
	}
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = DefaultOptions.DedupThreshold
	}
	return &Extractor{svc: svc, opts: opts}
}

// Extract returns the notes of doc. Chunk failures are collected in the
// result rather than returned; the only error is context cancellation.
func (e *Extractor) Extract(ctx context.Context, doc model.RawDocument) (*Result, error) {
	chunks := chunk.Split(doc.Text, e.opts.ChunkWords)
	res := &Result{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return res, nil
	}

	summary := e.summary(ctx, doc, len(chunks))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var texts []string
	var cands []Candidate
	for i, text := range chunks {
		got, err := e.extractChunk(ctx, Request{
			Title:    doc.Title,
			Summary:  summary,
			Chunk:    text,
			Index:    i,
			Total:    len(chunks),
			Previous: texts,
			MaxNotes: e.opts.MaxNotesPerChunk,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("chunk extraction failed", "doc", doc.ID, "chunk", i, "err", err)
			res.Failed = append(res.Failed, &model.UnitError{
				Stage:      model.StageExtract,
				DocumentID: doc.ID,
				Unit:       fmt.Sprintf("chunk:%d", i),
				Err:        err,
			})
			continue
		}
		for _, c := range clean(got, e.opts.MaxNotesPerChunk) {
			cands = append(cands, c)
			texts = append(texts, c.Text)
		}
	}

	cands = dedupe(cands, e.opts.DedupThreshold)
	hash := doc.Hash()
	res.Notes = make([]model.AtomicNote, len(cands))
	for i, c := range cands {
		res.Notes[i] = model.AtomicNote{
			ID:           model.NoteID(doc.ID, i),
			DocumentID:   doc.ID,
			DocumentHash: hash,
			Position:     i,
			Text:         c.Text,
			Type:         model.ParseNoteType(c.Type),
			TextHash:     model.ContentHash(c.Text),
		}
	}
	return res, nil
}

// summary asks the service for a document summary when the document spans
// several chunks. A single chunk already is the whole document, so its
// lead sentences serve.
func (e *Extractor) summary(ctx context.Context, doc model.RawDocument, chunks int) string {
	if chunks == 1 {
		return leadSummary(doc.Text)
	}
	s, err := e.svc.Summarize(ctx, doc)
	if err == nil && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if ctx.Err() == nil {
		logger.Warn("summary failed, using lead sentences", "doc", doc.ID, "err", err)
	}
	return leadSummary(doc.Text)
}

// extractChunk retries once with the strict instruction when the reply is
// malformed.
func (e *Extractor) extractChunk(ctx context.Context, req Request) ([]Candidate, error) {
	got, err := e.svc.Extract(ctx, req)
	if err == nil || !errors.Is(err, model.ErrMalformedResponse) {
		return got, err
	}
	logger.Debug("malformed extraction, retrying strict", "chunk", req.Index, "err", err)
	req.Strict = true
	return e.svc.Extract(ctx, req)
}

func clean(cands []Candidate, max int) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		c.Text = strings.Join(strings.Fields(c.Text), " ")
		if c.Text == "" {
			continue
		}
		out = append(out, c)
		if len(out) == max {
			break
		}
	}
	return out
}

const leadWords = 60

// leadSummary takes leading sentences up to about sixty words.
func leadSummary(text string) string {
	var parts []string
	words := 0
	for _, b := range chunk.Blocks(text) {
		if b.Heading {
			continue
		}
		for _, s := range chunk.Sentences(b.Text) {
			parts = append(parts, s)
			words += chunk.WordCount(s)
			if words >= leadWords {
				return strings.Join(parts, " ")
			}
		}
	}
	return strings.Join(parts, " ")
}
