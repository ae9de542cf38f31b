package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"

	"github.com/flarexio/docrag/persistence/sqlite/migrations"
	"github.com/flarexio/docrag/store"
)

// insertBatch bounds the rows per multi-row INSERT to stay under SQLite's
// host parameter limit.
const insertBatch = 500

// NewStore opens (creating if needed) the SQLite database at path and applies
// pending migrations.
func NewStore(path string) (store.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &sqliteStore{db}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

type sqliteStore struct {
	db *sqlx.DB
}

func (s *sqliteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Beginx()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

type documentRow struct {
	ID         int64          `db:"id"`
	Name       string         `db:"name"`
	ScopeKind  string         `db:"scope_kind"`
	ScopeID    int64          `db:"scope_id"`
	Text       string         `db:"text"`
	PageStarts sql.NullString `db:"page_starts"`
	CreatedAt  int64          `db:"created_at"`
}

func (row documentRow) document() (store.Document, error) {
	doc := store.Document{
		ID:   row.ID,
		Name: row.Name,
		Scope: store.Scope{
			Kind: store.ScopeKind(row.ScopeKind),
			ID:   row.ScopeID,
		},
		Text:      row.Text,
		CreatedAt: time.UnixMilli(row.CreatedAt),
	}

	if row.PageStarts.Valid && row.PageStarts.String != "" {
		if err := json.Unmarshal([]byte(row.PageStarts.String), &doc.PageStarts); err != nil {
			return store.Document{}, fmt.Errorf("decoding page starts of document %d: %w", row.ID, err)
		}
	}

	return doc, nil
}

func (s *sqliteStore) AddDocument(ctx context.Context, doc store.Document) (store.Document, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Document{}, false, err
	}
	defer tx.Rollback()

	var row documentRow
	err = tx.GetContext(ctx, &row, `
		SELECT id, name, scope_kind, scope_id, text, page_starts, created_at
		FROM documents
		WHERE scope_kind = ? AND scope_id = ? AND name = ?`,
		doc.Scope.Kind, doc.Scope.ID, doc.Name,
	)

	switch {
	case err == nil:
		existing, err := row.document()
		return existing, true, err

	case !errors.Is(err, sql.ErrNoRows):
		return store.Document{}, false, err
	}

	var pageStarts sql.NullString
	if len(doc.PageStarts) > 0 {
		bs, err := json.Marshal(doc.PageStarts)
		if err != nil {
			return store.Document{}, false, err
		}

		pageStarts = sql.NullString{String: string(bs), Valid: true}
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO documents (name, scope_kind, scope_id, text, page_starts, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.Name, doc.Scope.Kind, doc.Scope.ID, doc.Text, pageStarts, doc.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return store.Document{}, false, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return store.Document{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return store.Document{}, false, err
	}

	doc.ID = id
	doc.CreatedAt = time.UnixMilli(doc.CreatedAt.UnixMilli())
	return doc, false, nil
}

func (s *sqliteStore) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, scope_kind, scope_id, text, page_starts, created_at
		FROM documents WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, store.ErrDocumentNotFound
		}

		return store.Document{}, err
	}

	return row.document()
}

func (s *sqliteStore) ListDocuments(ctx context.Context, scope store.Scope) ([]store.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, scope_kind, scope_id, '' AS text, NULL AS page_starts, created_at
		FROM documents
		WHERE scope_kind = ? AND scope_id = ?
		ORDER BY id`,
		scope.Kind, scope.ID,
	)
	if err != nil {
		return nil, err
	}

	docs := make([]store.Document, len(rows))
	for i, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}

		docs[i] = doc
	}

	return docs, nil
}

func (s *sqliteStore) DeleteDocument(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return store.ErrDocumentNotFound
	}

	return nil
}

func (s *sqliteStore) InsertChunks(ctx context.Context, chunks []store.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := 0; i < len(chunks); i += insertBatch {
		end := min(i+insertBatch, len(chunks))

		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO chunks (document_id, start_index, end_index, page_number, embedding)
			VALUES (:document_id, :start_index, :end_index, :page_number, :embedding)`,
			chunks[i:end],
		)
		if err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) FetchChunksForScope(ctx context.Context, scope store.Scope) ([]store.ChunkRow, error) {
	rows := make([]store.ChunkRow, 0)
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.document_id, c.start_index, c.end_index, c.page_number, c.embedding,
		       d.name AS document_name, d.text AS document_text
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.scope_kind = ? AND d.scope_id = ?
		ORDER BY c.document_id, c.id`,
		scope.Kind, scope.ID,
	)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (s *sqliteStore) FetchDocumentText(ctx context.Context, id int64) (string, error) {
	var text string
	if err := s.db.GetContext(ctx, &text, "SELECT text FROM documents WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrDocumentNotFound
		}

		return "", err
	}

	return text, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
