package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ziadkadry99/distill/internal/model"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Run is the persisted record of one pipeline invocation.
type Run struct {
	ID         string          `json:"id"`
	Strategy   model.Strategy  `json:"strategy"`
	Status     RunStatus       `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Stats      json.RawMessage `json:"stats"`
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(ctx context.Context, id string, strategy model.Strategy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, status, started_at) VALUES (?, ?, ?, ?)`,
		id, string(strategy), string(RunRunning), formatTime(s.now()))
	if err != nil {
		return writeErr("starting run "+id, err)
	}
	return nil
}

// FinishRun stores the final status and stats of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, stats any) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshalling run stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, stats = ? WHERE id = ?`,
		string(status), formatTime(s.now()), string(data), id)
	if err != nil {
		return writeErr("finishing run "+id, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, status, started_at, finished_at, stats
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			strategy string
			status   string
			started  string
			finished sql.NullString
			stats    string
		)
		if err := rows.Scan(&r.ID, &strategy, &status, &started, &finished, &stats); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Strategy = model.Strategy(strategy)
		r.Status = RunStatus(status)
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseNullTime(finished)
		r.Stats = json.RawMessage(stats)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
