package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/distill/internal/model"
)

// ErrorRecord is a persisted unit failure.
type ErrorRecord struct {
	ID          int64           `json:"id"`
	DocumentID  string          `json:"document_id,omitempty"`
	Stage       model.Stage     `json:"stage"`
	Unit        string          `json:"unit,omitempty"`
	Kind        model.ErrorKind `json:"kind"`
	Message     string          `json:"message"`
	ContentHash string          `json:"content_hash,omitempty"`
	Retryable   bool            `json:"retryable"`
	RunID       string          `json:"run_id,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// RecordError persists a unit failure so it can be inspected and retried.
// contentHash is the document version the failure applies to, if any.
func (t *Tracker) RecordError(ctx context.Context, ue *model.UnitError, contentHash string) error {
	retryable := 0
	if ue.Retryable() {
		retryable = 1
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO stage_errors (document_id, stage, unit, kind, message, content_hash, retryable, run_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ue.DocumentID, string(ue.Stage), ue.Unit, string(ue.Kind()), ue.Err.Error(),
		contentHash, retryable, t.runID, formatTime(t.now()))
	if err != nil {
		return fmt.Errorf("recording %s error: %w: %w", ue.Stage, model.ErrStoreWrite, err)
	}
	return nil
}

// ResolveUnit closes open errors recorded for a unit that later succeeded.
func (t *Tracker) ResolveUnit(ctx context.Context, stage model.Stage, unit string) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE stage_errors SET resolved_at = ? WHERE stage = ? AND unit = ? AND resolved_at IS NULL`,
		formatTime(t.now()), string(stage), unit)
	if err != nil {
		return fmt.Errorf("resolving %s errors of %s: %w: %w", stage, unit, model.ErrStoreWrite, err)
	}
	return nil
}

// ErrorFilter narrows OpenErrors.
type ErrorFilter struct {
	DocumentID string
	Stage      model.Stage
	Limit      int
}

// OpenErrors returns unresolved failures, newest first.
func (t *Tracker) OpenErrors(ctx context.Context, f ErrorFilter) ([]ErrorRecord, error) {
	clauses := []string{"resolved_at IS NULL"}
	var args []any
	if f.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, f.DocumentID)
	}
	if f.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, string(f.Stage))
	}
	query := `SELECT id, document_id, stage, unit, kind, message, content_hash, retryable, run_id, recorded_at
		FROM stage_errors WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stage errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorRecord
	for rows.Next() {
		var (
			r          ErrorRecord
			stage      string
			kind       string
			retryable  int
			recordedAt string
		)
		if err := rows.Scan(&r.ID, &r.DocumentID, &stage, &r.Unit, &kind, &r.Message,
			&r.ContentHash, &retryable, &r.RunID, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning stage error: %w", err)
		}
		r.Stage = model.Stage(stage)
		r.Kind = model.ErrorKind(kind)
		r.Retryable = retryable == 1
		r.RecordedAt = parseTime(recordedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// OpenErrorCount returns the number of unresolved failures.
func (t *Tracker) OpenErrorCount(ctx context.Context) (int, error) {
	var n sql.NullInt64
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stage_errors WHERE resolved_at IS NULL`).Scan(&n)
	return int(n.Int64), err
}
