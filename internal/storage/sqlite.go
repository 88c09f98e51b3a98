package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

var _ vector.MetadataStore = (*SQLiteStorage)(nil)

// ErrNotFound is returned when a document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		pages TEXT NOT NULL,
		word_count INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		idx INTEGER PRIMARY KEY,
		chunk_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		start_word INTEGER NOT NULL,
		end_word INTEGER NOT NULL,
		text TEXT NOT NULL,
		preview TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id);

	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		report TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceChunks swaps the whole metadata sequence in one transaction.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, records []models.ChunkRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceChunks(ctx, tx, records)
	})
}

// ReplaceIndex swaps the chunk metadata and the document records and appends report to
// the build history, all in one transaction. Either everything is written or nothing is.
func (s *SQLiteStorage) ReplaceIndex(ctx context.Context, records []models.ChunkRecord, docs []models.Document, report *models.BuildReport) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceChunks(ctx, tx, records); err != nil {
			return err
		}
		if err := replaceDocuments(ctx, tx, docs); err != nil {
			return err
		}
		return recordBuild(ctx, tx, report)
	})
}

func (s *SQLiteStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceChunks(ctx context.Context, tx *sql.Tx, records []models.ChunkRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (idx, chunk_id, source_id, filename, ordinal, start_word, end_word, text, preview)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, i, r.ChunkID, r.SourceID, r.Filename,
			r.Ordinal, r.StartWord, r.EndWord, r.Text, r.Preview); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// ListChunks returns the metadata sequence ordered by insertion index.
func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]models.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, chunk_id, source_id, filename, ordinal, start_word, end_word, text, preview
		 FROM chunks ORDER BY idx`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.ChunkRecord, 0)
	for rows.Next() {
		var idx int
		var r models.ChunkRecord
		if err := rows.Scan(&idx, &r.ChunkID, &r.SourceID, &r.Filename,
			&r.Ordinal, &r.StartWord, &r.EndWord, &r.Text, &r.Preview); err != nil {
			return nil, err
		}
		if idx != len(records) {
			return nil, fmt.Errorf("chunk metadata has a gap at index %d", len(records))
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetChunk returns the record at insertion index.
func (s *SQLiteStorage) GetChunk(ctx context.Context, index int) (*models.ChunkRecord, error) {
	var r models.ChunkRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, source_id, filename, ordinal, start_word, end_word, text, preview
		 FROM chunks WHERE idx = ?`, index,
	).Scan(&r.ChunkID, &r.SourceID, &r.Filename, &r.Ordinal, &r.StartWord, &r.EndWord, &r.Text, &r.Preview)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ReplaceDocuments swaps the document records in one transaction.
func (s *SQLiteStorage) ReplaceDocuments(ctx context.Context, docs []models.Document) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceDocuments(ctx, tx, docs)
	})
}

func replaceDocuments(ctx context.Context, tx *sql.Tx, docs []models.Document) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, filename, pages, word_count, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, doc := range docs {
		pagesJSON, err := json.Marshal(doc.Pages)
		if err != nil {
			return fmt.Errorf("failed to marshal pages: %w", err)
		}
		created := doc.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Filename, string(pagesJSON),
			doc.WordCount, doc.ChunkCount, created); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, pages, word_count, chunk_count, created_at
		 FROM documents WHERE id = ?`, id,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns documents ordered by filename with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, pages, word_count, chunk_count, created_at
		 FROM documents ORDER BY filename, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var pagesJSON string
	if err := row.Scan(&doc.ID, &doc.Filename, &pagesJSON, &doc.WordCount, &doc.ChunkCount, &doc.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pagesJSON), &doc.Pages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pages: %w", err)
	}
	return &doc, nil
}

// RecordBuild appends a build report to the history.
func (s *SQLiteStorage) RecordBuild(ctx context.Context, report *models.BuildReport) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return recordBuild(ctx, tx, report)
	})
}

func recordBuild(ctx context.Context, tx *sql.Tx, report *models.BuildReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal build report: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO builds (id, report, started_at) VALUES (?, ?, ?)`,
		report.BuildID, string(data), report.StartedAt,
	); err != nil {
		return fmt.Errorf("failed to record build %s: %w", report.BuildID, err)
	}
	return nil
}

// LastBuild returns the most recent build report, or ErrNotFound.
func (s *SQLiteStorage) LastBuild(ctx context.Context) (*models.BuildReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM builds ORDER BY started_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("build history: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var report models.BuildReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal build report: %w", err)
	}
	return &report, nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
