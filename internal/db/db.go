package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB holding the distillation store.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
// The pool is pinned to one connection because every new connection to
// ":memory:" would otherwise see its own empty database.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Path returns the file the database was opened from.
func (d *DB) Path() string { return d.path }

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
// Timestamps are RFC 3339 text in UTC.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    source_type TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    ingested_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS document_versions (
    document_id TEXT NOT NULL REFERENCES documents(id),
    content_hash TEXT NOT NULL,
    body TEXT NOT NULL,
    ingested_at TEXT NOT NULL,
    PRIMARY KEY (document_id, content_hash)
);

CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id),
    document_hash TEXT NOT NULL,
    position INTEGER NOT NULL,
    body TEXT NOT NULL,
    note_type TEXT NOT NULL CHECK(note_type IN ('idea','task','question','story')),
    text_hash TEXT NOT NULL,
    embedding BLOB,
    embedding_hash TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    retired_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_notes_document ON notes(document_id, position);

CREATE TABLE IF NOT EXISTS note_versions (
    note_id TEXT NOT NULL REFERENCES notes(id),
    text_hash TEXT NOT NULL,
    body TEXT NOT NULL,
    note_type TEXT NOT NULL,
    document_hash TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (note_id, text_hash)
);

CREATE TABLE IF NOT EXISTS concepts (
    id TEXT PRIMARY KEY,
    strategy TEXT NOT NULL CHECK(strategy IN ('group','cluster')),
    theme TEXT NOT NULL,
    perspectives TEXT NOT NULL DEFAULT '[]',
    contradictions TEXT NOT NULL DEFAULT '[]',
    anchor_note_id TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL,
    unit_index INTEGER NOT NULL DEFAULT 0,
    run_id TEXT NOT NULL DEFAULT '',
    superseded_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    UNIQUE (fingerprint, unit_index)
);

CREATE TABLE IF NOT EXISTS concept_sources (
    concept_id TEXT NOT NULL REFERENCES concepts(id),
    note_id TEXT NOT NULL REFERENCES notes(id),
    text_hash TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    PRIMARY KEY (concept_id, note_id)
);

CREATE INDEX IF NOT EXISTS idx_concept_sources_note ON concept_sources(note_id);

CREATE TABLE IF NOT EXISTS processing_state (
    document_id TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    last_run TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_completions (
    document_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    completed_at TEXT NOT NULL,
    PRIMARY KEY (document_id, stage)
);

CREATE TABLE IF NOT EXISTS stage_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL DEFAULT '',
    stage TEXT NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    content_hash TEXT NOT NULL DEFAULT '',
    retryable INTEGER NOT NULL DEFAULT 1,
    run_id TEXT NOT NULL DEFAULT '',
    recorded_at TEXT NOT NULL,
    resolved_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_stage_errors_open ON stage_errors(document_id, stage, resolved_at);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    strategy TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('running','completed','cancelled','failed')),
    started_at TEXT NOT NULL,
    finished_at TEXT,
    stats TEXT NOT NULL DEFAULT '{}'
);
`
