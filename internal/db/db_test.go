package db

import (
	"path/filepath"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	tables := []string{
		"documents", "document_versions", "notes", "note_versions", "concepts",
		"concept_sources", "processing_state", "stage_completions",
		"stage_errors", "runs",
	}

	for _, table := range tables {
		var count int
		err := d.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	if err := d.migrate(); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	_, err = d.Exec(`INSERT INTO notes (id, document_id, document_hash, position, body, note_type, text_hash, created_at)
		VALUES ('n1', 'missing', 'h', 0, 'text', 'idea', 'th', '2026-01-01T00:00:00Z')`)
	if err == nil {
		t.Fatal("expected foreign key violation for note without document")
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "distill.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if d.Path() != path {
		t.Errorf("Path() = %q, want %q", d.Path(), path)
	}
	d.Close()

	// Reopening an existing database must not fail on migrations.
	d, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	d.Close()
}
