package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"palette/internal/domain"
	"palette/internal/memory"
)

var migrations = []memory.Migration{
	{
		Version:     1,
		Description: "knowledge documents and full-text chunk index",
		SQL: `
		CREATE TABLE IF NOT EXISTS documents (
			id          TEXT NOT NULL,
			index_id    TEXT NOT NULL,
			name        TEXT NOT NULL,
			mime_type   TEXT DEFAULT '',
			size        INTEGER DEFAULT 0,
			chunk_count INTEGER DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (index_id, id)
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content,
			index_id UNINDEXED,
			document_id UNINDEXED,
			chunk_index UNINDEXED
		);
		`,
	},
}

// Hit is one ranked chunk.
type Hit struct {
	DocumentID string
	DocName    string
	ChunkIndex int
	Content    string
}

// Store persists knowledge documents in SQLite and ranks chunks with FTS5 bm25.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create knowledge directory: %w", err)
	}
	db, err := memory.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if err := memory.ApplyMigrations(db, migrations, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) AddDocument(ctx context.Context, doc domain.SourceDocument, chunks []domain.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE index_id = ? AND document_id = ?`, doc.IndexID, doc.ID,
	); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, index_id, name, mime_type, size, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.IndexID, doc.Name, doc.MimeType, doc.Size, doc.ChunkCount, doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts (content, index_id, document_id, chunk_index) VALUES (?, ?, ?, ?)`,
			c.Content, doc.IndexID, doc.ID, c.ChunkIndex,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// Search ranks chunks of indexID against the query terms. Terms are quoted
// and OR-ed so user text never reaches the FTS query syntax.
func (s *Store) Search(ctx context.Context, indexID, query string, k int) ([]Hit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunks_fts.content, chunks_fts.document_id, chunks_fts.chunk_index, documents.name
		 FROM chunks_fts
		 JOIN documents ON documents.id = chunks_fts.document_id AND documents.index_id = chunks_fts.index_id
		 WHERE chunks_fts MATCH ? AND chunks_fts.index_id = ?
		 ORDER BY chunks_fts.rank
		 LIMIT ?`, match, indexID, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Content, &h.DocumentID, &h.ChunkIndex, &h.DocName); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) ListDocuments(ctx context.Context, indexID string) ([]domain.SourceDocument, error) {
	q := `SELECT id, index_id, name, mime_type, size, chunk_count, created_at FROM documents`
	var args []any
	if indexID != "" {
		q += ` WHERE index_id = ?`
		args = append(args, indexID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.SourceDocument
	for rows.Next() {
		var d domain.SourceDocument
		if err := rows.Scan(&d.ID, &d.IndexID, &d.Name, &d.MimeType, &d.Size, &d.ChunkCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, indexID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE index_id = ? AND document_id = ?`, indexID, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE index_id = ? AND id = ?`, indexID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s not found in %s", id, indexID)
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ftsQuery turns free text into an FTS5 expression of quoted OR-ed terms.
func ftsQuery(text string) string {
	terms := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}
