package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ziadkadry99/distill/internal/model"
)

// PutConcept inserts a distilled concept together with its provenance
// edges. If c.ID is empty a UUID is generated. Source refs without a text
// hash are pinned to the note's current text.
func (s *Store) PutConcept(ctx context.Context, c *model.DistilledConcept) error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("concept without sources: %w", model.ErrStoreWrite)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	perspectives, err := json.Marshal(nonNil(c.Perspectives))
	if err != nil {
		return fmt.Errorf("marshalling perspectives: %w", err)
	}
	contradictions, err := json.Marshal(nonNil(c.Contradictions))
	if err != nil {
		return fmt.Errorf("marshalling contradictions: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO concepts (
				id, strategy, theme, perspectives, contradictions, anchor_note_id,
				fingerprint, unit_index, run_id, superseded_by, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, string(c.Strategy), c.Theme, string(perspectives), string(contradictions),
			c.AnchorNoteID, c.Fingerprint, c.UnitIndex, c.RunID, c.SupersededBy, formatTime(c.CreatedAt))
		if err != nil {
			return writeErr("inserting concept "+c.ID, err)
		}

		for i := range c.Sources {
			src := &c.Sources[i]
			if src.TextHash == "" {
				if err := tx.QueryRowContext(ctx, `SELECT text_hash FROM notes WHERE id = ?`, src.NoteID).Scan(&src.TextHash); err != nil {
					return writeErr("resolving source note "+src.NoteID, err)
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO concept_sources (concept_id, note_id, text_hash, ordinal) VALUES (?, ?, ?, ?)`,
				c.ID, src.NoteID, src.TextHash, i)
			if err != nil {
				return writeErr("linking concept "+c.ID+" to note "+src.NoteID, err)
			}
		}
		return nil
	})
}

// Supersede marks an older concept as replaced by a newer one. The old
// concept and its edges stay in place.
func (s *Store) Supersede(ctx context.Context, oldID, newID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE concepts SET superseded_by = ? WHERE id = ? AND superseded_by = ''`, newID, oldID)
	if err != nil {
		return writeErr("superseding concept "+oldID, err)
	}
	return nil
}

// Reactivate clears the superseded marker of a concept whose exact source
// set has come back.
func (s *Store) Reactivate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE concepts SET superseded_by = '' WHERE id = ?`, id)
	if err != nil {
		return writeErr("reactivating concept "+id, err)
	}
	return nil
}

const conceptColumns = `id, strategy, theme, perspectives, contradictions, anchor_note_id,
	fingerprint, unit_index, run_id, superseded_by, created_at`

// GetConcept returns a concept with its source edges.
func (s *Store) GetConcept(ctx context.Context, id string) (*model.DistilledConcept, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conceptColumns+` FROM concepts WHERE id = ?`, id)
	c, err := scanConcept(row)
	if err != nil {
		return nil, notFound("concept", id, err)
	}
	if err := s.loadSources(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ConceptsByFingerprint returns the concepts derived from a unit, ordered
// by unit index.
func (s *Store) ConceptsByFingerprint(ctx context.Context, fingerprint string) ([]model.DistilledConcept, error) {
	return s.queryConcepts(ctx, `SELECT `+conceptColumns+` FROM concepts
		WHERE fingerprint = ? ORDER BY unit_index`, fingerprint)
}

// AllConcepts scans concepts oldest first. Superseded concepts are skipped
// unless includeSuperseded is set.
func (s *Store) AllConcepts(ctx context.Context, includeSuperseded bool) ([]model.DistilledConcept, error) {
	query := `SELECT ` + conceptColumns + ` FROM concepts`
	if !includeSuperseded {
		query += ` WHERE superseded_by = ''`
	}
	query += ` ORDER BY created_at, id`
	return s.queryConcepts(ctx, query)
}

// ConceptsForNote returns every concept, superseded or not, that cites the note.
func (s *Store) ConceptsForNote(ctx context.Context, noteID string) ([]model.DistilledConcept, error) {
	return s.queryConcepts(ctx, `SELECT `+conceptColumns+` FROM concepts
		WHERE id IN (SELECT concept_id FROM concept_sources WHERE note_id = ?)
		ORDER BY created_at, id`, noteID)
}

// CountConcepts returns the number of concepts, including superseded ones.
func (s *Store) CountConcepts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM concepts`).Scan(&n)
	return n, err
}

func (s *Store) queryConcepts(ctx context.Context, query string, args ...any) ([]model.DistilledConcept, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying concepts: %w", err)
	}

	var concepts []model.DistilledConcept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning concept: %w", err)
		}
		concepts = append(concepts, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sources are loaded after the cursor is closed; the in-memory database
	// runs on a single connection.
	for i := range concepts {
		if err := s.loadSources(ctx, &concepts[i]); err != nil {
			return nil, err
		}
	}
	return concepts, nil
}

func (s *Store) loadSources(ctx context.Context, c *model.DistilledConcept) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id, text_hash FROM concept_sources WHERE concept_id = ? ORDER BY ordinal`, c.ID)
	if err != nil {
		return fmt.Errorf("querying sources of %s: %w", c.ID, err)
	}
	defer rows.Close()

	c.Sources = nil
	for rows.Next() {
		var ref model.SourceRef
		if err := rows.Scan(&ref.NoteID, &ref.TextHash); err != nil {
			return fmt.Errorf("scanning source of %s: %w", c.ID, err)
		}
		c.Sources = append(c.Sources, ref)
	}
	return rows.Err()
}

func scanConcept(sc scanner) (*model.DistilledConcept, error) {
	var (
		c              model.DistilledConcept
		strategy       string
		perspectives   string
		contradictions string
		created        string
	)
	if err := sc.Scan(&c.ID, &strategy, &c.Theme, &perspectives, &contradictions, &c.AnchorNoteID,
		&c.Fingerprint, &c.UnitIndex, &c.RunID, &c.SupersededBy, &created); err != nil {
		return nil, err
	}
	c.Strategy = model.Strategy(strategy)
	c.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(perspectives), &c.Perspectives); err != nil {
		return nil, fmt.Errorf("decoding perspectives of %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(contradictions), &c.Contradictions); err != nil {
		return nil, fmt.Errorf("decoding contradictions of %s: %w", c.ID, err)
	}
	return &c, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
