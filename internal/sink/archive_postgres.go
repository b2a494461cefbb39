package sink

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/jobclip/jobclip-cli/internal/model"
	"github.com/jobclip/jobclip-cli/internal/resilience"
)

// PgxQuerier is the subset of pgxpool.Pool used by the Postgres archive.
// pgxmock satisfies it in tests.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresArchive stores clipped records in Postgres.
type PostgresArchive struct {
	pool    PgxQuerier
	closeFn func()
}

// NewPostgresArchive creates an archive backed by a connection pool.
func NewPostgresArchive(ctx context.Context, connString string) (*PostgresArchive, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresArchive{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresArchiveWithQuerier wraps an existing querier (used by tests).
func NewPostgresArchiveWithQuerier(q PgxQuerier) *PostgresArchive {
	return &PostgresArchive{pool: q}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	sink       TEXT NOT NULL,
	dedup_key  TEXT NOT NULL,
	title      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (sink, dedup_key)
);

CREATE INDEX IF NOT EXISTS idx_records_title ON records(title);
`

func (s *PostgresArchive) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresArchive) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresArchive) ID() string { return "archive" }

func (s *PostgresArchive) FetchSchema(ctx context.Context) ([]model.RawField, error) {
	return archiveSchema, nil
}

func (s *PostgresArchive) FindByKey(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM records WHERE sink = $1 AND dedup_key = $2`,
		s.ID(), key,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap(eris.Wrap(err, "postgres: find record"))
	}
	return id, true, nil
}

func (s *PostgresArchive) Create(ctx context.Context, rec Record) (string, error) {
	row, err := buildArchiveRow(rec)
	if err != nil {
		return "", NewError(s.ID(), false, err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (id, sink, dedup_key, title, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, s.ID(), rec.Key, row.Title, row.Payload, now, now,
	)
	if err != nil {
		return "", s.wrap(eris.Wrap(err, "postgres: insert record"))
	}
	return id, nil
}

func (s *PostgresArchive) Update(ctx context.Context, recordID string, rec Record) error {
	row, err := buildArchiveRow(rec)
	if err != nil {
		return NewError(s.ID(), false, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET title = $1, payload = $2, updated_at = $3 WHERE id = $4`,
		row.Title, row.Payload, time.Now().UTC(), recordID,
	)
	if err != nil {
		return s.wrap(eris.Wrapf(err, "postgres: update record %s", recordID))
	}
	if tag.RowsAffected() == 0 {
		return NewError(s.ID(), false, eris.Errorf("record not found: %s", recordID))
	}
	return nil
}

func (s *PostgresArchive) wrap(err error) error {
	return NewError(s.ID(), resilience.IsTransient(err), err)
}

var _ Store = (*PostgresArchive)(nil)
