// Package export renders the active concept set as a browsable set of
// pages: one markdown page per concept with its full provenance, plus an
// index. Pages can be written as markdown or as a static HTML site.
package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/provenance"
)

// ConceptLister lists concepts from the store.
type ConceptLister interface {
	AllConcepts(ctx context.Context, includeSuperseded bool) ([]model.DistilledConcept, error)
}

// Page is one rendered markdown page. Path is slash-separated and relative
// to the export root.
type Page struct {
	Path     string
	Title    string
	Markdown []byte
}

// Exporter builds pages from the store.
type Exporter struct {
	Title string

	concepts ConceptLister
	graph    *provenance.Graph
}

// New returns an Exporter over the given store and provenance graph.
func New(concepts ConceptLister, graph *provenance.Graph, title string) *Exporter {
	if title == "" {
		title = "Distilled concepts"
	}
	return &Exporter{Title: title, concepts: concepts, graph: graph}
}

type indexEntry struct {
	Concept   model.DistilledConcept
	Documents int
	Href      string
}

// Build renders the index page followed by one page per active concept.
// Concepts are ordered by how many notes they cover, largest first.
func (e *Exporter) Build(ctx context.Context) ([]Page, error) {
	conceptTmpl, err := template.New("concept").Funcs(templateFuncs).Parse(conceptTemplate)
	if err != nil {
		return nil, err
	}
	indexTmpl, err := template.New("index").Funcs(templateFuncs).Parse(indexTemplate)
	if err != nil {
		return nil, err
	}

	concepts, err := e.concepts.AllConcepts(ctx, false)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(concepts, func(i, j int) bool {
		if len(concepts[i].Sources) != len(concepts[j].Sources) {
			return len(concepts[i].Sources) > len(concepts[j].Sources)
		}
		return concepts[i].ID < concepts[j].ID
	})

	pages := []Page{{Path: "index.md", Title: e.Title}}
	var entries []indexEntry
	for _, c := range concepts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := e.graph.Trace(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := conceptTmpl.Execute(&buf, tr); err != nil {
			return nil, fmt.Errorf("rendering concept %s: %w", c.ID, err)
		}
		href := "concepts/" + c.ID + ".md"
		pages = append(pages, Page{Path: href, Title: heading(c.Theme), Markdown: buf.Bytes()})
		entries = append(entries, indexEntry{Concept: c, Documents: len(tr.Documents), Href: href})
	}

	var buf bytes.Buffer
	data := struct {
		Title    string
		Concepts []indexEntry
	}{e.Title, entries}
	if err := indexTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering index: %w", err)
	}
	pages[0].Markdown = buf.Bytes()
	return pages, nil
}

var templateFuncs = template.FuncMap{
	"heading": heading,
	"short":   shortHash,
	"quote":   quote,
	"docTitle": func(d model.RawDocument) string {
		if d.Title != "" {
			return d.Title
		}
		return d.ID
	},
}

const maxHeading = 80

// heading reduces a theme to a single-line title.
func heading(theme string) string {
	line := strings.TrimSpace(theme)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if len(line) <= maxHeading {
		return line
	}
	cut := strings.LastIndexByte(line[:maxHeading], ' ')
	if cut <= 0 {
		cut = maxHeading
	}
	return strings.TrimRight(line[:cut], " ,;:") + "..."
}

func quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight("> "+l, " ")
	}
	return strings.Join(lines, "\n")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
