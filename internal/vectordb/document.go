package vectordb

import "time"

// Kind selects the collection an entry lives in.
type Kind string

const (
	KindNote    Kind = "notes"
	KindConcept Kind = "concepts"
)

// Kinds lists every collection.
var Kinds = []Kind{KindNote, KindConcept}

// Entry is a piece of text stored and searched by meaning. Entries that
// carry an Embedding are stored as is; the others are embedded on insert.
type Entry struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  EntryMetadata
}

// EntryMetadata holds the fields search results can be filtered on.
type EntryMetadata struct {
	DocumentID  string
	NoteType    string
	Strategy    string
	ContentHash string
	Sources     int
	UpdatedAt   time.Time
}

// SearchResult pairs an entry with its similarity score.
type SearchResult struct {
	Entry      Entry
	Kind       Kind
	Similarity float32
}

// SearchFilter narrows search results by metadata fields.
type SearchFilter struct {
	DocumentID *string
	NoteType   *string
	Strategy   *string
}
