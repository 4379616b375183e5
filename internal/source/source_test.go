package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ziadkadry99/distill/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func vault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "daily/2024-01-01.md", "# Monday\n\nShip the draft.")
	writeFile(t, root, "ideas.txt", "Plain text idea.")
	writeFile(t, root, "with-front.md", "---\ntitle: Reading list\ntags: [books, later]\n---\nBody here.\n")
	writeFile(t, root, "image.png", "\x89PNG\x00\x00")
	writeFile(t, root, "binary.md", "abc\x00def")
	writeFile(t, root, ".obsidian/workspace.md", "# ignored")
	writeFile(t, root, "archive/old.md", "# Old")
	return root
}

func ids(docs []model.RawDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestFileSystemDocuments(t *testing.T) {
	root := vault(t)
	docs, err := FileSystem{Root: root}.Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents() error: %v", err)
	}

	want := []string{"archive/old.md", "daily/2024-01-01.md", "ideas.txt", "with-front.md"}
	got := ids(docs)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("doc %d: got %q, want %q", i, got[i], want[i])
		}
	}

	daily := docs[1]
	if daily.SourceType != "markdown" || daily.Title != "Monday" {
		t.Errorf("unexpected daily doc: type=%q title=%q", daily.SourceType, daily.Title)
	}
	if daily.ContentHash != model.ContentHash("# Monday\n\nShip the draft.") {
		t.Error("content hash should cover the raw file bytes")
	}
	if daily.Metadata["path"] != "daily/2024-01-01.md" {
		t.Errorf("unexpected path metadata %q", daily.Metadata["path"])
	}

	txt := docs[2]
	if txt.SourceType != "text" || txt.Title != "ideas" {
		t.Errorf("unexpected text doc: type=%q title=%q", txt.SourceType, txt.Title)
	}
}

func TestFileSystemFrontMatter(t *testing.T) {
	root := vault(t)
	docs, err := FileSystem{Root: root, Include: []string{"with-front.md"}}.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %v", ids(docs))
	}
	d := docs[0]
	if d.Title != "Reading list" {
		t.Errorf("title: got %q", d.Title)
	}
	if d.Metadata["tags"] != "books,later" {
		t.Errorf("tags: got %q", d.Metadata["tags"])
	}
	if d.Text != "Body here.\n" {
		t.Errorf("front matter should be stripped, got %q", d.Text)
	}
}

func TestFileSystemExclude(t *testing.T) {
	root := vault(t)
	docs, err := FileSystem{
		Root:    root,
		Include: []string{"**/*.md"},
		Exclude: []string{"archive/**"},
	}.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := ids(docs)
	if len(got) != 2 || got[0] != "daily/2024-01-01.md" || got[1] != "with-front.md" {
		t.Errorf("unexpected docs %v", got)
	}
}

func TestFileSystemMissingRoot(t *testing.T) {
	_, err := FileSystem{Root: filepath.Join(t.TempDir(), "nope")}.Documents(context.Background())
	if err == nil {
		t.Error("expected error for missing root")
	}
}

func TestFileSystemCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (FileSystem{Root: vault(t)}).Documents(ctx); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestStaticFillsHashes(t *testing.T) {
	docs, err := Static{{ID: "a", Text: "hello"}}.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if docs[0].ContentHash != model.ContentHash("hello") || docs[0].SourceType != "text" {
		t.Errorf("unexpected doc %+v", docs[0])
	}
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"notes/a.md", []string{"**/*.md"}, true},
		{"a.md", []string{"**/*.md"}, true},
		{"deep/x/y.txt", []string{"*.txt"}, true},
		{"deep/x/y.txt", []string{"deep/*.txt"}, false},
		{"archive/old.md", []string{"archive/**"}, true},
		{"notes/a.md", nil, false},
	}
	for _, tt := range tests {
		if got := matchesAny(tt.path, tt.patterns); got != tt.want {
			t.Errorf("matchesAny(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
}
