package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ziadkadry99/distill/internal/chunk"
	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
)

// DefaultMaxFileSize is the largest file read as a document (4 MB).
const DefaultMaxFileSize int64 = 4 << 20

// FileSystem reads markdown and text files under a root directory.
type FileSystem struct {
	Root        string
	Include     []string
	Exclude     []string
	MaxFileSize int64
}

// Documents walks Root and returns one document per supported file,
// sorted by id. Unreadable and binary files are skipped with a warning.
func (f FileSystem) Documents(ctx context.Context) ([]model.RawDocument, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return nil, fmt.Errorf("source: resolve root: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("source: %s is not a directory", root)
	}
	maxSize := f.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var docs []model.RawDocument
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logger.Warn("skipping unreadable path", "path", p, "err", walkErr)
			return nil
		}
		if d.IsDir() {
			if p != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		typ := sourceType(d.Name())
		if typ == "" {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !included(rel, f.Include, f.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			logger.Debug("skipping file", "path", rel, "size", sizeOf(info))
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", rel, "err", err)
			return nil
		}
		if bytes.IndexByte(data[:min(len(data), 512)], 0) >= 0 {
			logger.Debug("skipping binary file", "path", rel)
			return nil
		}

		docs = append(docs, buildDocument(rel, typ, data, info.ModTime()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: traversal: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func sizeOf(info fs.FileInfo) int64 {
	if info == nil {
		return -1
	}
	return info.Size()
}

func buildDocument(rel, typ string, data []byte, modTime time.Time) model.RawDocument {
	text := string(data)
	meta := map[string]string{
		"path":     rel,
		"size":     strconv.Itoa(len(data)),
		"modified": modTime.UTC().Format(time.RFC3339),
	}

	if typ == "markdown" {
		var front map[string]any
		front, text = splitFrontMatter(text)
		for k, v := range front {
			if s := scalar(v); s != "" {
				meta[k] = s
			}
		}
	}

	return model.RawDocument{
		ID:          rel,
		SourceType:  typ,
		Title:       title(rel, meta["title"], text),
		Text:        text,
		Metadata:    meta,
		ContentHash: model.ContentHash(string(data)),
		IngestedAt:  time.Now().UTC(),
	}
}

// splitFrontMatter separates a leading YAML front matter block. Malformed
// front matter is left in the body.
func splitFrontMatter(text string) (map[string]any, string) {
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return nil, text
	}
	rest := text[strings.IndexByte(text, '\n')+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, text
	}
	var front map[string]any
	if err := yaml.Unmarshal([]byte(rest[:end]), &front); err != nil {
		return nil, text
	}
	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return front, body
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int, int64, float64, bool:
		return fmt.Sprint(x)
	case time.Time:
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := scalar(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// title prefers front matter, then the first heading, then the file name.
func title(rel, front, text string) string {
	if front != "" {
		return front
	}
	for _, b := range chunk.Blocks(text) {
		if b.Heading {
			return strings.TrimSpace(strings.TrimLeft(b.Text, "#"))
		}
	}
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
