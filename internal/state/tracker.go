// Package state tracks per-document, per-stage processing so that re-runs
// only spend service calls on new or changed work.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/model"
)

// Tracker records which stages have completed for which content hash of
// each document, and which units failed.
type Tracker struct {
	db    *db.DB
	now   func() time.Time
	runID string
}

// NewTracker creates a Tracker backed by the given database.
func NewTracker(database *db.DB) *Tracker {
	return &Tracker{db: database, now: time.Now}
}

// ForRun returns a tracker that tags recorded errors with runID.
func (t *Tracker) ForRun(runID string) *Tracker {
	cp := *t
	cp.runID = runID
	return &cp
}

// Load returns the processing state of a document, or nil if the document
// has never been processed.
func (t *Tracker) Load(ctx context.Context, documentID string) (*model.ProcessingState, error) {
	var hash, lastRun string
	err := t.db.QueryRowContext(ctx,
		`SELECT content_hash, last_run FROM processing_state WHERE document_id = ?`, documentID).
		Scan(&hash, &lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading state of %s: %w", documentID, err)
	}

	st := &model.ProcessingState{
		DocumentID:  documentID,
		ContentHash: hash,
		Completed:   make(map[model.Stage]string),
		CompletedAt: make(map[model.Stage]time.Time),
		LastRun:     parseTime(lastRun),
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT stage, content_hash, completed_at FROM stage_completions WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading stages of %s: %w", documentID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var stage, h, at string
		if err := rows.Scan(&stage, &h, &at); err != nil {
			return nil, fmt.Errorf("scanning stage of %s: %w", documentID, err)
		}
		st.Completed[model.Stage(stage)] = h
		st.CompletedAt[model.Stage(stage)] = parseTime(at)
	}
	return st, rows.Err()
}

// ShouldProcess reports whether the document is new or its content changed
// since it was last processed.
func (t *Tracker) ShouldProcess(ctx context.Context, doc model.RawDocument) (bool, error) {
	st, err := t.Load(ctx, doc.ID)
	if err != nil {
		return false, err
	}
	return st == nil || st.ContentHash != doc.Hash(), nil
}

// Pending reports whether stage still has to run for the document's
// current content.
func (t *Tracker) Pending(ctx context.Context, doc model.RawDocument, stage model.Stage) (bool, error) {
	var h string
	err := t.db.QueryRowContext(ctx,
		`SELECT content_hash FROM stage_completions WHERE document_id = ? AND stage = ?`, doc.ID, string(stage)).
		Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s of %s: %w", stage, doc.ID, err)
	}
	return h != doc.Hash(), nil
}

// MarkComplete records that stage succeeded for the document's current
// content hash and resolves the stage's open errors. Earlier stages are
// never rolled back by a later failure.
func (t *Tracker) MarkComplete(ctx context.Context, doc model.RawDocument, stage model.Stage) error {
	hash := doc.Hash()
	now := formatTime(t.now())

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning state update: %w: %w", model.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO processing_state (document_id, content_hash, last_run) VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET content_hash = excluded.content_hash, last_run = excluded.last_run`,
		doc.ID, hash, now); err != nil {
		return fmt.Errorf("updating state of %s: %w: %w", doc.ID, model.ErrStoreWrite, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stage_completions (document_id, stage, content_hash, completed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, stage) DO UPDATE SET content_hash = excluded.content_hash, completed_at = excluded.completed_at`,
		doc.ID, string(stage), hash, now); err != nil {
		return fmt.Errorf("marking %s of %s: %w: %w", stage, doc.ID, model.ErrStoreWrite, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE stage_errors SET resolved_at = ?
		WHERE document_id = ? AND stage = ? AND resolved_at IS NULL`,
		now, doc.ID, string(stage)); err != nil {
		return fmt.Errorf("resolving errors of %s: %w: %w", doc.ID, model.ErrStoreWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state of %s: %w: %w", doc.ID, model.ErrStoreWrite, err)
	}
	return nil
}

// CompletedCount returns how many documents have stage complete for their
// current state hash.
func (t *Tracker) CompletedCount(ctx context.Context, stage model.Stage) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stage_completions c
		JOIN processing_state p ON p.document_id = c.document_id AND p.content_hash = c.content_hash
		WHERE c.stage = ?`, string(stage)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s completions: %w", stage, err)
	}
	return n, nil
}

// AllStates returns the processing state of every tracked document.
func (t *Tracker) AllStates(ctx context.Context) ([]model.ProcessingState, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT document_id FROM processing_state ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("listing states: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	states := make([]model.ProcessingState, 0, len(ids))
	for _, id := range ids {
		st, err := t.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if st != nil {
			states = append(states, *st)
		}
	}
	return states, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
