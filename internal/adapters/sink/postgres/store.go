// Package postgres stores dispatch records in PostgreSQL for deployments
// that run more than one normalizer.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists dispatch records.
type Store struct {
	db *sqlx.DB
}

// New connects to dsn and applies pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(database.DialectPostgres, db.DB, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
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
		limit = 100
	}

	var out []*domain.DispatchRecord
	err := s.db.SelectContext(ctx, &out, `SELECT request_id, call_type, model, message_count, messages, raw, token_estimate, created_at
FROM dispatch_records
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatch records: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ ports.RecordSink   = (*Store)(nil)
	_ ports.RecordLister = (*Store)(nil)
)
