package vectordb

import (
	"strings"

	"github.com/ziadkadry99/distill/internal/model"
)

// NoteEntry indexes a note under its stored embedding.
func NoteEntry(n model.AtomicNote) Entry {
	return Entry{
		ID:        n.ID,
		Content:   n.Text,
		Embedding: n.Embedding,
		Metadata: EntryMetadata{
			DocumentID:  n.DocumentID,
			NoteType:    string(n.Type),
			ContentHash: n.TextHash,
			UpdatedAt:   n.CreatedAt,
		},
	}
}

// ConceptEntry indexes a concept by its theme and perspectives. It has no
// vector, so the store embeds it on insert.
func ConceptEntry(c model.DistilledConcept) Entry {
	return Entry{
		ID:      c.ID,
		Content: ConceptText(c),
		Metadata: EntryMetadata{
			Strategy:    string(c.Strategy),
			ContentHash: c.Fingerprint,
			Sources:     len(c.Sources),
			UpdatedAt:   c.CreatedAt,
		},
	}
}

// ConceptText is the searchable text of a concept.
func ConceptText(c model.DistilledConcept) string {
	var b strings.Builder
	b.WriteString(c.Theme)
	for _, p := range c.Perspectives {
		if p.Statement == "" || p.Statement == c.Theme {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(p.Statement)
	}
	return b.String()
}
