package provenance

import (
	"fmt"
	"strings"
)

// Format renders a trace as indented text: the concept, then each cited
// note under the document version it came from.
func Format(tr *Trace) string {
	var sb strings.Builder
	c := tr.Concept
	fmt.Fprintf(&sb, "Concept %s (%s)\n", c.ID, c.Strategy)
	if !c.Active() {
		fmt.Fprintf(&sb, "Superseded by %s\n", c.SupersededBy)
	}
	fmt.Fprintf(&sb, "Theme: %s\n", c.Theme)
	for _, p := range c.Perspectives {
		fmt.Fprintf(&sb, "  - %s\n", p.Statement)
	}
	for _, x := range c.Contradictions {
		fmt.Fprintf(&sb, "  ! %s\n", x.Description)
	}

	fmt.Fprintf(&sb, "\nSources (%d note(s) from %d document(s)):\n", len(tr.Links), len(tr.Documents))
	for _, l := range tr.Links {
		title := l.Document.Title
		if title == "" {
			title = l.Document.ID
		}
		fmt.Fprintf(&sb, "\n  %s [%s] @ %s\n", l.Note.ID, l.Note.Type, shortHash(l.Note.TextHash))
		fmt.Fprintf(&sb, "    %s\n", l.Note.Text)
		fmt.Fprintf(&sb, "    from %s (%s) version %s\n", l.Document.ID, title, shortHash(l.Document.ContentHash))
	}
	return sb.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
