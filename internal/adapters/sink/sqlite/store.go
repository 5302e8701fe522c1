// Package sqlite stores dispatch records in SQLite.
package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

// Store persists dispatch records.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the database at path. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dispatch_records (
id TEXT PRIMARY KEY,
request_id TEXT,
call_type TEXT NOT NULL,
model TEXT NOT NULL,
message_count INTEGER NOT NULL,
messages TEXT NOT NULL,
raw INTEGER NOT NULL DEFAULT 0,
token_estimate INTEGER NOT NULL DEFAULT 0,
created_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_records_created ON dispatch_records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_records_request ON dispatch_records(request_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type recordRow struct {
	ID string `db:"id"`
	domain.DispatchRecord
}

// Record inserts one dispatch record.
func (s *Store) Record(ctx context.Context, rec *domain.DispatchRecord) error {
	row := recordRow{
		ID:             uuid.NewString(),
		DispatchRecord: *rec,
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO dispatch_records
(id, request_id, call_type, model, message_count, messages, raw, token_estimate, created_at)
VALUES (:id, :request_id, :call_type, :model, :message_count, :messages, :raw, :token_estimate, :created_at)`, row)
	if err != nil {
		return fmt.Errorf("insert dispatch record: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*domain.DispatchRecord, error) {
	if limit <= 0 {
		limit = 100 // default limit
	}

	var out []*domain.DispatchRecord
	err := s.db.SelectContext(ctx, &out, `SELECT request_id, call_type, model, message_count, messages, raw, token_estimate, created_at
FROM dispatch_records
ORDER BY created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatch records: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure Store implements the interfaces at compile time.
var (
	_ ports.RecordSink   = (*Store)(nil)
	_ ports.RecordLister = (*Store)(nil)
)
