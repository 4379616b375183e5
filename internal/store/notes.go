package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ziadkadry99/distill/internal/model"
)

// NoteWriteStats summarizes what PutNotes changed.
type NoteWriteStats struct {
	Created   int
	Revised   int
	Unchanged int
	Retired   int
}

// PutNotes writes the notes extracted from one document version. Notes are
// keyed by their deterministic id: unchanged text is left alone (keeping any
// stored embedding), changed text is recorded as a new note version. When
// retireOthers is set, the document's live notes that are not part of this
// extraction are retired. Nothing is ever deleted.
func (s *Store) PutNotes(ctx context.Context, documentID, documentHash string, notes []model.AtomicNote, retireOthers bool) (NoteWriteStats, error) {
	var stats NoteWriteStats
	now := formatTime(s.now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, n := range notes {
			if n.DocumentID != documentID {
				return fmt.Errorf("note %s belongs to %q, not %q: %w", n.ID, n.DocumentID, documentID, model.ErrStoreWrite)
			}
			textHash := n.TextHash
			if textHash == "" {
				textHash = model.ContentHash(n.Text)
			}

			var existing string
			var retired sql.NullString
			err := tx.QueryRowContext(ctx, `SELECT text_hash, retired_at FROM notes WHERE id = ?`, n.ID).Scan(&existing, &retired)
			switch {
			case err == sql.ErrNoRows:
				stats.Created++
				_, err = tx.ExecContext(ctx, `
					INSERT INTO notes (id, document_id, document_hash, position, body, note_type, text_hash, created_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					n.ID, documentID, documentHash, n.Position, n.Text, string(n.Type), textHash, now)
				if err != nil {
					return writeErr("inserting note "+n.ID, err)
				}
			case err != nil:
				return fmt.Errorf("looking up note %s: %w", n.ID, err)
			case existing == textHash && !retired.Valid:
				stats.Unchanged++
				continue
			default:
				stats.Revised++
				_, err = tx.ExecContext(ctx, `
					UPDATE notes SET document_hash = ?, position = ?, body = ?, note_type = ?, text_hash = ?, retired_at = NULL
					WHERE id = ?`,
					documentHash, n.Position, n.Text, string(n.Type), textHash, n.ID)
				if err != nil {
					return writeErr("revising note "+n.ID, err)
				}
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO note_versions (note_id, text_hash, body, note_type, document_hash, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(note_id, text_hash) DO NOTHING`,
				n.ID, textHash, n.Text, string(n.Type), documentHash, now)
			if err != nil {
				return writeErr("recording note version "+n.ID, err)
			}
		}

		if !retireOthers {
			return nil
		}

		query := `UPDATE notes SET retired_at = ? WHERE document_id = ? AND retired_at IS NULL`
		args := []any{now, documentID}
		if len(notes) > 0 {
			query += ` AND id NOT IN (` + placeholders(len(notes)) + `)`
			for _, n := range notes {
				args = append(args, n.ID)
			}
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return writeErr("retiring notes of "+documentID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			stats.Retired = int(n)
		}
		return nil
	})
	return stats, err
}

// SetEmbedding attaches a vector to a note, tagged with the
// model.EmbeddingKey it was computed under.
func (s *Store) SetEmbedding(ctx context.Context, noteID string, vec []float32, key string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET embedding = ?, embedding_hash = ? WHERE id = ?`,
		encodeVector(vec), key, noteID)
	if err != nil {
		return writeErr("storing embedding for "+noteID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("storing embedding for %s: %w", noteID, model.ErrNotFound)
	}
	return nil
}

// ClearEmbedding drops a note's vector so the next run embeds it again.
func (s *Store) ClearEmbedding(ctx context.Context, noteID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notes SET embedding = NULL, embedding_hash = '' WHERE id = ?`, noteID); err != nil {
		return writeErr("clearing embedding for "+noteID, err)
	}
	return nil
}

// DocumentsNeedingEmbedding returns the ids of documents with a live note
// that has no vector for its current text under embeddingModel.
func (s *Store) DocumentsNeedingEmbedding(ctx context.Context, embeddingModel string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT document_id FROM notes
		WHERE retired_at IS NULL AND (embedding IS NULL OR embedding_hash != text_hash || ?)`,
		keySuffix(embeddingModel))
	if err != nil {
		return nil, fmt.Errorf("querying stale embeddings: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stale embeddings: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// keySuffix is what model.EmbeddingKey appends to a text hash.
func keySuffix(embeddingModel string) string {
	return model.EmbeddingKey("", embeddingModel)
}

const noteColumns = `id, document_id, document_hash, position, body, note_type, text_hash, embedding, embedding_hash, created_at, retired_at`

// GetNote returns a note by id, including its embedding.
func (s *Store) GetNote(ctx context.Context, id string) (*model.AtomicNote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		return nil, notFound("note", id, err)
	}
	return n, nil
}

// GetNoteVersion returns the note as it read when its text had textHash.
func (s *Store) GetNoteVersion(ctx context.Context, id, textHash string) (*model.AtomicNote, error) {
	var (
		n       model.AtomicNote
		typ     string
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT n.id, n.document_id, v.document_hash, n.position, v.body, v.note_type, v.text_hash, v.created_at
		FROM note_versions v JOIN notes n ON n.id = v.note_id
		WHERE v.note_id = ? AND v.text_hash = ?`, id, textHash).
		Scan(&n.ID, &n.DocumentID, &n.DocumentHash, &n.Position, &n.Text, &typ, &n.TextHash, &created)
	if err != nil {
		return nil, notFound("note version", id+"@"+textHash, err)
	}
	n.Type = model.NoteType(typ)
	n.CreatedAt = parseTime(created)
	return &n, nil
}

// NoteFilter narrows AllNotes.
type NoteFilter struct {
	IncludeRetired bool
	// EmbeddedOnly keeps notes whose vector matches their current text
	// under EmbeddingModel.
	EmbeddedOnly   bool
	EmbeddingModel string
}

// AllNotes scans notes ordered by id.
func (s *Store) AllNotes(ctx context.Context, f NoteFilter) ([]model.AtomicNote, error) {
	var (
		clauses []string
		args    []any
	)
	if !f.IncludeRetired {
		clauses = append(clauses, "retired_at IS NULL")
	}
	if f.EmbeddedOnly {
		clauses = append(clauses, "embedding IS NOT NULL", "embedding_hash = text_hash || ?")
		args = append(args, keySuffix(f.EmbeddingModel))
	}
	query := `SELECT ` + noteColumns + ` FROM notes`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	return s.queryNotes(ctx, query, args...)
}

// NotesForDocument returns a document's live notes in extraction order.
func (s *Store) NotesForDocument(ctx context.Context, documentID string) ([]model.AtomicNote, error) {
	return s.queryNotes(ctx, `SELECT `+noteColumns+` FROM notes
		WHERE document_id = ? AND retired_at IS NULL ORDER BY position`, documentID)
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...any) ([]model.AtomicNote, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var notes []model.AtomicNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func scanNote(sc scanner) (*model.AtomicNote, error) {
	var (
		n       model.AtomicNote
		typ     string
		vec     []byte
		created string
		retired sql.NullString
	)
	if err := sc.Scan(&n.ID, &n.DocumentID, &n.DocumentHash, &n.Position, &n.Text, &typ,
		&n.TextHash, &vec, &n.EmbeddingHash, &created, &retired); err != nil {
		return nil, err
	}
	n.Type = model.NoteType(typ)
	n.Embedding = decodeVector(vec)
	n.CreatedAt = parseTime(created)
	n.RetiredAt = parseNullTime(retired)
	return &n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
