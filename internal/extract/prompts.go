package extract

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/distill/internal/llm"
)

const extractSystemPrompt = `You split personal notes into atomic notes. An atomic note states exactly one idea, task, question or story, is self-contained, and is phrased as a full sentence a reader understands without the source.

Respond with a JSON object of the form:
{"notes": [{"text": "...", "type": "idea|task|question|story"}]}`

const strictSuffix = `

Your previous reply could not be parsed. Reply with ONLY the JSON object, no prose, no markdown fences. Every element needs a non-empty "text" string and a "type" that is exactly one of idea, task, question, story.`

const summarySystemPrompt = `You write a two or three sentence summary of a personal document. It is given as context to someone reading one excerpt at a time, so name the main subjects and the purpose of the document. Reply with the summary only.`

// Summaries only need the opening of long documents.
const summaryInputChars = 12000

func buildExtractMessages(req Request) []llm.Message {
	var b strings.Builder
	if req.Title != "" {
		fmt.Fprintf(&b, "Document: %s\n", req.Title)
	}
	fmt.Fprintf(&b, "Document summary: %s\n\n", req.Summary)
	if len(req.Previous) > 0 {
		b.WriteString("Notes already extracted from earlier excerpts (do not repeat them, even reworded):\n")
		for _, p := range req.Previous {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Excerpt %d of %d:\n<<<\n%s\n>>>\n\n", req.Index+1, req.Total, req.Chunk)
	fmt.Fprintf(&b, "Extract between 0 and %d atomic notes from the excerpt. Prefer 3 to 5 when the excerpt has that much content; return an empty list for boilerplate.", req.MaxNotes)

	system := extractSystemPrompt
	if req.Strict {
		system += strictSuffix
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func buildSummaryMessages(title, text string) []llm.Message {
	if len(text) > summaryInputChars {
		text = text[:summaryInputChars]
	}
	user := text
	if title != "" {
		user = "Title: " + title + "\n\n" + text
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
}
