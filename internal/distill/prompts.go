package distill

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/distill/internal/model"
)

const mergeSystemPrompt = `You are given several notes that say the same thing in different words. Write one clear, self-contained sentence stating the idea they share. Start from the first note, which carries the most detail, and keep any specifics it has.

Respond with a JSON object: {"theme": "..."}`

const synthesizeSystemPrompt = `You are given numbered notes on one topic, written at different times. Describe the topic without flattening disagreement.

- "theme": one sentence naming the central topic.
- "perspectives": the distinct viewpoints, in order of importance. Each has a "statement" and the "notes" (numbers) that hold it. Notes that differ in substance belong to different perspectives. Every note belongs to exactly one perspective.
- "contradictions": tensions or disagreements between notes, each with a "description" and the "notes" involved. Use an empty list if there are none.

Respond with a JSON object:
{"theme": "...", "perspectives": [{"statement": "...", "notes": [1, 2]}], "contradictions": [{"description": "...", "notes": [1, 3]}]}`

const strictSuffix = `

Your previous reply could not be parsed. Reply with ONLY the JSON object, no prose, no markdown fences. "theme" must be a non-empty string and note references must be integers.`

func buildMergePrompt(anchor model.AtomicNote, others []model.AtomicNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "1. %s\n", anchor.Text)
	for i, n := range others {
		fmt.Fprintf(&b, "%d. %s\n", i+2, n.Text)
	}
	return b.String()
}

func buildSynthesizePrompt(notes []model.AtomicNote) string {
	var b strings.Builder
	b.WriteString("Notes:\n")
	for i, n := range notes {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, n.Type, n.Text)
	}
	return b.String()
}
