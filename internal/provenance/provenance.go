// Package provenance walks the link chain from distilled concepts back to
// the exact note and document versions they came from.
package provenance

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ziadkadry99/distill/internal/model"
)

// Store is the read side of the persistent store the graph walks.
type Store interface {
	GetConcept(ctx context.Context, id string) (*model.DistilledConcept, error)
	AllConcepts(ctx context.Context, includeSuperseded bool) ([]model.DistilledConcept, error)
	ConceptsForNote(ctx context.Context, noteID string) ([]model.DistilledConcept, error)
	GetNoteVersion(ctx context.Context, id, textHash string) (*model.AtomicNote, error)
	GetDocumentVersion(ctx context.Context, id, contentHash string) (*model.RawDocument, error)
	NotesForDocument(ctx context.Context, documentID string) ([]model.AtomicNote, error)
}

// Graph answers provenance questions over a Store.
type Graph struct {
	store Store
}

// New returns a Graph reading from store.
func New(store Store) *Graph {
	return &Graph{store: store}
}

// Link is one hop of a concept's provenance: the cited note version and
// the document version it was extracted from.
type Link struct {
	Note     model.AtomicNote  `json:"note"`
	Document model.RawDocument `json:"document"`
}

// Trace is the full provenance of one concept.
type Trace struct {
	Concept   model.DistilledConcept `json:"concept"`
	Links     []Link                 `json:"links"`
	Documents []string               `json:"documents"`
}

// Trace resolves every source of a concept, superseded or not.
func (g *Graph) Trace(ctx context.Context, conceptID string) (*Trace, error) {
	c, err := g.store.GetConcept(ctx, conceptID)
	if err != nil {
		return nil, err
	}

	tr := &Trace{Concept: *c}
	seen := map[string]bool{}
	for _, src := range c.Sources {
		link, err := g.resolve(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("concept %s: %w", c.ID, err)
		}
		tr.Links = append(tr.Links, *link)
		if !seen[link.Document.ID] {
			seen[link.Document.ID] = true
			tr.Documents = append(tr.Documents, link.Document.ID)
		}
	}
	sort.Strings(tr.Documents)
	return tr, nil
}

func (g *Graph) resolve(ctx context.Context, src model.SourceRef) (*Link, error) {
	note, err := g.store.GetNoteVersion(ctx, src.NoteID, src.TextHash)
	if err != nil {
		return nil, err
	}
	doc, err := g.store.GetDocumentVersion(ctx, note.DocumentID, note.DocumentHash)
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", note.ID, err)
	}
	return &Link{Note: *note, Document: *doc}, nil
}

// Dangling is a provenance edge that does not resolve.
type Dangling struct {
	ConceptID string          `json:"concept_id"`
	Source    model.SourceRef `json:"source"`
	Reason    string          `json:"reason"`
}

// Verify checks that every edge of every concept, including superseded
// ones, ends at a document version in the store. It returns the edges that
// do not; an empty result means the graph is closed.
func (g *Graph) Verify(ctx context.Context) ([]Dangling, error) {
	concepts, err := g.store.AllConcepts(ctx, true)
	if err != nil {
		return nil, err
	}

	var bad []Dangling
	for _, c := range concepts {
		if len(c.Sources) == 0 {
			bad = append(bad, Dangling{ConceptID: c.ID, Reason: "concept has no sources"})
			continue
		}
		for _, src := range c.Sources {
			if _, err := g.resolve(ctx, src); err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					return nil, err
				}
				bad = append(bad, Dangling{ConceptID: c.ID, Source: src, Reason: err.Error()})
			}
		}
	}
	return bad, nil
}

// ConceptsForDocument returns every concept citing a live note of the
// document, oldest first.
func (g *Graph) ConceptsForDocument(ctx context.Context, documentID string) ([]model.DistilledConcept, error) {
	notes, err := g.store.NotesForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []model.DistilledConcept
	for _, n := range notes {
		concepts, err := g.store.ConceptsForNote(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range concepts {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
