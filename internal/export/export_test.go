package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/provenance"
	"github.com/ziadkadry99/distill/internal/store"
)

func newExporter(t *testing.T) (*Exporter, *model.DistilledConcept) {
	t.Helper()
	ctx := context.Background()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	s := store.New(database)

	doc := model.RawDocument{ID: "notes/garden.md", SourceType: "markdown", Title: "Garden", Text: "Tomatoes need sun. Water <b>daily</b>."}
	require.NoError(t, s.PutDocument(ctx, doc))
	texts := []string{"Tomatoes need sun.", "Water <b>daily</b>."}
	notes := make([]model.AtomicNote, len(texts))
	for i, txt := range texts {
		notes[i] = model.AtomicNote{
			ID:           model.NoteID(doc.ID, i),
			DocumentID:   doc.ID,
			DocumentHash: doc.Hash(),
			Position:     i,
			Text:         txt,
			Type:         model.NoteIdea,
			TextHash:     model.ContentHash(txt),
		}
	}
	_, err = s.PutNotes(ctx, doc.ID, doc.Hash(), notes, true)
	require.NoError(t, err)

	c := &model.DistilledConcept{
		Strategy:       model.StrategyCluster,
		Theme:          "Tomatoes thrive with sun and steady water.",
		Perspectives:   []model.Perspective{{Statement: "Sunlight matters most.", NoteIDs: []string{notes[0].ID}}},
		Contradictions: []model.Contradiction{{Description: "Watering frequency is disputed."}},
		Sources:        model.SourcesOf(notes),
		Fingerprint:    "fp",
	}
	require.NoError(t, s.PutConcept(ctx, c))
	return New(s, provenance.New(s), ""), c
}

func TestBuild(t *testing.T) {
	e, c := newExporter(t)
	pages, err := e.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 2)

	index := string(pages[0].Markdown)
	assert.Equal(t, "index.md", pages[0].Path)
	assert.Contains(t, index, "# Distilled concepts")
	assert.Contains(t, index, "1 active concept(s).")
	assert.Contains(t, index, "[Tomatoes thrive with sun and steady water.](concepts/"+c.ID+".md) | cluster | 2 | 1 |")

	page := string(pages[1].Markdown)
	assert.Equal(t, "concepts/"+c.ID+".md", pages[1].Path)
	assert.True(t, strings.HasPrefix(page, "# Tomatoes thrive with sun and steady water.\n"))
	assert.Contains(t, page, "## Perspectives\n\n- Sunlight matters most.\n")
	assert.Contains(t, page, "## Contradictions\n\n- Watering frequency is disputed.\n")
	assert.Contains(t, page, "> Tomatoes need sun.")
	assert.Contains(t, page, "From **Garden** (`notes/garden.md` version")
}

func TestHeading(t *testing.T) {
	assert.Equal(t, "Short theme", heading("  Short theme\nsecond line"))
	long := strings.Repeat("word ", 30)
	h := heading(long)
	assert.True(t, strings.HasSuffix(h, "..."))
	assert.LessOrEqual(t, len(h), maxHeading+3)
}

func TestWriteMarkdownAndHTML(t *testing.T) {
	e, c := newExporter(t)
	pages, err := e.Build(context.Background())
	require.NoError(t, err)

	mdDir := t.TempDir()
	require.NoError(t, WriteMarkdown(mdDir, pages))
	_, err = os.Stat(filepath.Join(mdDir, "concepts", c.ID+".md"))
	require.NoError(t, err)

	htmlDir := t.TempDir()
	require.NoError(t, WriteHTML(htmlDir, e.Title, pages))
	index, err := os.ReadFile(filepath.Join(htmlDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `href="concepts/`+c.ID+`.html"`)
	assert.Contains(t, string(index), `href="style.css"`)

	page, err := os.ReadFile(filepath.Join(htmlDir, "concepts", c.ID+".html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), `href="../style.css"`)
	assert.Contains(t, string(page), `href="../index.html"`)
	assert.NotContains(t, string(page), "<b>daily</b>")
}
