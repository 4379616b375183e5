package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- %d. %s %s (similarity: %.4f) ---\n", i+1, singular(r.Kind), r.Entry.ID, r.Similarity))

		md := r.Entry.Metadata
		if md.DocumentID != "" {
			sb.WriteString(fmt.Sprintf("Document: %s\n", md.DocumentID))
		}
		if md.NoteType != "" {
			sb.WriteString(fmt.Sprintf("Type: %s\n", md.NoteType))
		}
		if md.Strategy != "" {
			sb.WriteString(fmt.Sprintf("Strategy: %s, %d source note(s)\n", md.Strategy, md.Sources))
		}

		sb.WriteString("\n")
		sb.WriteString(r.Entry.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

func singular(k Kind) string {
	switch k {
	case KindNote:
		return "note"
	case KindConcept:
		return "concept"
	default:
		return string(k)
	}
}
