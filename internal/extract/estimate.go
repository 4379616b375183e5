package extract

import (
	"github.com/ziadkadry99/distill/internal/chunk"
	"github.com/ziadkadry99/distill/internal/llm"
	"github.com/ziadkadry99/distill/internal/model"
)

// Output allowances per call, in tokens.
const (
	summaryOutputTokens = 120
	noteOutputTokens    = 50
)

// Estimate is the expected service usage of extracting some documents.
type Estimate struct {
	Documents    int `json:"documents"`
	Chunks       int `json:"chunks"`
	Calls        int `json:"calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates o into e.
func (e *Estimate) Add(o Estimate) {
	e.Documents += o.Documents
	e.Chunks += o.Chunks
	e.Calls += o.Calls
	e.InputTokens += o.InputTokens
	e.OutputTokens += o.OutputTokens
}

// Estimate predicts the calls and tokens Extract would spend on doc, using
// the prompts it would send and assuming every chunk yields the maximum
// number of notes. No service is called.
func (e *Extractor) Estimate(doc model.RawDocument) Estimate {
	chunks := chunk.Split(doc.Text, e.opts.ChunkWords)
	est := Estimate{Documents: 1, Chunks: len(chunks)}
	if len(chunks) == 0 {
		return est
	}

	summary := leadSummary(doc.Text)
	if len(chunks) > 1 {
		est.Calls++
		est.InputTokens += messageTokens(buildSummaryMessages(doc.Title, doc.Text))
		est.OutputTokens += summaryOutputTokens
	}

	var previous []string
	for i, text := range chunks {
		msgs := buildExtractMessages(Request{
			Title:    doc.Title,
			Summary:  summary,
			Chunk:    text,
			Index:    i,
			Total:    len(chunks),
			Previous: previous,
			MaxNotes: e.opts.MaxNotesPerChunk,
		})
		est.Calls++
		est.InputTokens += messageTokens(msgs)
		est.OutputTokens += e.opts.MaxNotesPerChunk * noteOutputTokens
		// Earlier notes are resent with every later chunk; a one-sentence
		// placeholder per note stands in for their text.
		for n := 0; n < e.opts.MaxNotesPerChunk; n++ {
			previous = append(previous, "A previously extracted atomic note of about this length.")
		}
	}
	return est
}

func messageTokens(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += llm.EstimateTokens(m.Content)
	}
	return n
}
