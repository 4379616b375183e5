// Package model defines the records that flow through the distillation
// pipeline: raw documents, atomic notes, distilled concepts and the
// per-document processing state.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stage names a pipeline stage tracked per document.
type Stage string

const (
	StageIngest  Stage = "ingest"
	StageExtract Stage = "extract"
	StageEmbed   Stage = "embed"
	// StageDistill is only used for error records; distillation works over
	// the whole note population, not per document.
	StageDistill Stage = "distill"
)

// DocumentStages are the stages every document passes through, in order.
var DocumentStages = []Stage{StageIngest, StageExtract, StageEmbed}

// NoteType tags what kind of unit an atomic note captures.
type NoteType string

const (
	NoteIdea     NoteType = "idea"
	NoteTask     NoteType = "task"
	NoteQuestion NoteType = "question"
	NoteStory    NoteType = "story"
)

// ParseNoteType maps free-form type labels onto the four known types.
// Unknown labels become ideas.
func ParseNoteType(s string) NoteType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task", "todo", "action", "action item":
		return NoteTask
	case "question", "open question":
		return NoteQuestion
	case "story", "anecdote", "example":
		return NoteStory
	default:
		return NoteIdea
	}
}

// RawDocument is an unmodified source unit.
type RawDocument struct {
	ID          string            `json:"id"`
	SourceType  string            `json:"source_type"`
	Title       string            `json:"title,omitempty"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ContentHash string            `json:"content_hash"`
	IngestedAt  time.Time         `json:"ingested_at"`
}

// Hash returns the document's content hash, computing it from Text when
// the source did not supply one.
func (d RawDocument) Hash() string {
	if d.ContentHash != "" {
		return d.ContentHash
	}
	return ContentHash(d.Text)
}

// AtomicNote is one indivisible idea, task, question or story.
type AtomicNote struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	DocumentHash  string     `json:"document_hash"`
	Position      int        `json:"position"`
	Text          string     `json:"text"`
	Type          NoteType   `json:"type"`
	TextHash      string     `json:"text_hash"`
	Embedding     []float32  `json:"embedding,omitempty"`
	EmbeddingHash string     `json:"embedding_hash,omitempty"` // EmbeddingKey the vector was computed under
	CreatedAt     time.Time  `json:"created_at"`
	RetiredAt     *time.Time `json:"retired_at,omitempty"`
}

// EmbeddingKey tags a vector with the note text and the embedding model
// that produced it. Vectors from different models are not comparable, so
// switching models makes every stored vector stale.
func EmbeddingKey(textHash, embeddingModel string) string {
	if embeddingModel == "" {
		return textHash
	}
	return textHash + "@" + embeddingModel
}

// NeedsEmbedding reports whether the note has no vector for its current
// text under embeddingModel.
func (n AtomicNote) NeedsEmbedding(embeddingModel string) bool {
	return len(n.Embedding) == 0 || n.EmbeddingHash != EmbeddingKey(n.TextHash, embeddingModel)
}

// HasEmbedding reports whether the note has a vector for its current text
// from any model.
func (n AtomicNote) HasEmbedding() bool {
	if len(n.Embedding) == 0 {
		return false
	}
	return n.EmbeddingHash == n.TextHash || strings.HasPrefix(n.EmbeddingHash, n.TextHash+"@")
}

// Retired reports whether a later extraction of the document dropped the note.
func (n AtomicNote) Retired() bool { return n.RetiredAt != nil }

// NoteID derives a note id from its source document and extraction position.
func NoteID(documentID string, position int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d", documentID, position)
	return "n_" + hex.EncodeToString(h.Sum(nil))[:20]
}

// Strategy names a distillation strategy.
type Strategy string

const (
	StrategyGroup   Strategy = "group"
	StrategyCluster Strategy = "cluster"
)

// Perspective is one distinct viewpoint inside a distilled concept.
type Perspective struct {
	Statement string   `json:"statement"`
	NoteIDs   []string `json:"note_ids"`
}

// Contradiction is a tension detected between members of a cluster.
type Contradiction struct {
	Description string   `json:"description"`
	NoteIDs     []string `json:"note_ids,omitempty"`
}

// DistilledConcept is a synthesized, de-duplicated insight.
type DistilledConcept struct {
	ID             string          `json:"id"`
	Strategy       Strategy        `json:"strategy"`
	Theme          string          `json:"theme"`
	Perspectives   []Perspective   `json:"perspectives,omitempty"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
	AnchorNoteID   string          `json:"anchor_note_id,omitempty"`
	Sources        []SourceRef     `json:"sources"`
	Fingerprint    string          `json:"fingerprint"`
	UnitIndex      int             `json:"unit_index"`
	RunID          string          `json:"run_id,omitempty"`
	SupersededBy   string          `json:"superseded_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SourceRef is a provenance edge from a concept to the exact version of a
// note it was distilled from.
type SourceRef struct {
	NoteID   string `json:"note_id"`
	TextHash string `json:"text_hash"`
}

// SourceNoteIDs returns the ids of the concept's source notes in order.
func (c DistilledConcept) SourceNoteIDs() []string {
	ids := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		ids[i] = s.NoteID
	}
	return ids
}

// SourcesOf builds provenance edges for notes.
func SourcesOf(notes []AtomicNote) []SourceRef {
	refs := make([]SourceRef, len(notes))
	for i, n := range notes {
		th := n.TextHash
		if th == "" {
			th = ContentHash(n.Text)
		}
		refs[i] = SourceRef{NoteID: n.ID, TextHash: th}
	}
	return refs
}

// Active reports whether no later concept has replaced this one.
func (c DistilledConcept) Active() bool { return c.SupersededBy == "" }

// ProcessingState is the per-document stage completion record.
type ProcessingState struct {
	DocumentID  string              `json:"document_id"`
	ContentHash string              `json:"content_hash"`
	Completed   map[Stage]string    `json:"completed"` // stage -> content hash it completed for
	CompletedAt map[Stage]time.Time `json:"completed_at"`
	LastRun     time.Time           `json:"last_run"`
}

// StageDone reports whether stage completed for the state's current hash.
func (s *ProcessingState) StageDone(stage Stage) bool {
	if s == nil {
		return false
	}
	h, ok := s.Completed[stage]
	return ok && h == s.ContentHash
}

// ContentHash is the SHA-256 hex digest of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Fingerprint identifies a distillation unit by its strategy and the
// exact note texts it covers, independent of member order.
func Fingerprint(strategy Strategy, notes []AtomicNote) string {
	keys := make([]string, len(notes))
	for i, n := range notes {
		th := n.TextHash
		if th == "" {
			th = ContentHash(n.Text)
		}
		keys[i] = n.ID + ":" + th
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(strategy))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NoteIDs returns the ids of notes in order.
func NoteIDs(notes []AtomicNote) []string {
	ids := make([]string, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
	}
	return ids
}
