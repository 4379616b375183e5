package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ziadkadry99/distill/internal/model"
)

// PutDocument records a document version. The first time a content hash is
// seen for an id it is appended to the version history and becomes the
// document's current version; re-putting a known version is a no-op apart
// from making it current again.
func (s *Store) PutDocument(ctx context.Context, doc model.RawDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("putting document: empty id: %w", model.ErrStoreWrite)
	}
	hash := doc.Hash()
	ingested := doc.IngestedAt
	if ingested.IsZero() {
		ingested = s.now()
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata for %s: %w", doc.ID, err)
	}
	if doc.Metadata == nil {
		meta = []byte("{}")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, source_type, title, content_hash, metadata, ingested_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_type = excluded.source_type,
				title = excluded.title,
				content_hash = excluded.content_hash,
				metadata = excluded.metadata,
				ingested_at = excluded.ingested_at`,
			doc.ID, doc.SourceType, doc.Title, hash, string(meta), formatTime(ingested))
		if err != nil {
			return writeErr("upserting document "+doc.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO document_versions (document_id, content_hash, body, ingested_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(document_id, content_hash) DO NOTHING`,
			doc.ID, hash, doc.Text, formatTime(ingested))
		if err != nil {
			return writeErr("inserting document version "+doc.ID, err)
		}
		return nil
	})
}

const documentColumns = `d.id, d.source_type, d.title, d.content_hash, d.metadata, v.body, v.ingested_at`

// GetDocument returns the current version of a document.
func (s *Store) GetDocument(ctx context.Context, id string) (*model.RawDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		JOIN document_versions v ON v.document_id = d.id AND v.content_hash = d.content_hash
		WHERE d.id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFound("document", id, err)
	}
	return doc, nil
}

// GetDocumentVersion returns a specific, possibly superseded, version.
func (s *Store) GetDocumentVersion(ctx context.Context, id, contentHash string) (*model.RawDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		JOIN document_versions v ON v.document_id = d.id
		WHERE d.id = ? AND v.content_hash = ?`, id, contentHash)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFound("document version", id+"@"+contentHash, err)
	}
	doc.ContentHash = contentHash
	return doc, nil
}

// AllDocuments returns the current version of every document, ordered by id.
func (s *Store) AllDocuments(ctx context.Context) ([]model.RawDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		JOIN document_versions v ON v.document_id = d.id AND v.content_hash = d.content_hash
		ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []model.RawDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (*model.RawDocument, error) {
	var (
		doc      model.RawDocument
		meta     string
		ingested string
	)
	if err := sc.Scan(&doc.ID, &doc.SourceType, &doc.Title, &doc.ContentHash, &meta, &doc.Text, &ingested); err != nil {
		return nil, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", doc.ID, err)
		}
	}
	doc.IngestedAt = parseTime(ingested)
	return &doc, nil
}
