package sink

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// SQLiteArchive stores clipped records in a local SQLite database.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteArchive{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	sink       TEXT NOT NULL,
	dedup_key  TEXT NOT NULL,
	title      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_sink_key ON records(sink, dedup_key);
CREATE INDEX IF NOT EXISTS idx_records_title ON records(title);
`

func (s *SQLiteArchive) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

func (s *SQLiteArchive) ID() string { return "archive" }

func (s *SQLiteArchive) FetchSchema(ctx context.Context) ([]model.RawField, error) {
	return archiveSchema, nil
}

func (s *SQLiteArchive) FindByKey(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM records WHERE sink = ? AND dedup_key = ?`,
		s.ID(), key,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, NewError(s.ID(), false, eris.Wrap(err, "sqlite: find record"))
	}
	return id, true, nil
}

func (s *SQLiteArchive) Create(ctx context.Context, rec Record) (string, error) {
	row, err := buildArchiveRow(rec)
	if err != nil {
		return "", NewError(s.ID(), false, err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, sink, dedup_key, title, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, s.ID(), rec.Key, row.Title, string(row.Payload), now, now,
	)
	if err != nil {
		return "", NewError(s.ID(), false, eris.Wrap(err, "sqlite: insert record"))
	}
	return id, nil
}

func (s *SQLiteArchive) Update(ctx context.Context, recordID string, rec Record) error {
	row, err := buildArchiveRow(rec)
	if err != nil {
		return NewError(s.ID(), false, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET title = ?, payload = ?, updated_at = ? WHERE id = ?`,
		row.Title, string(row.Payload), time.Now().UTC(), recordID,
	)
	if err != nil {
		return NewError(s.ID(), false, eris.Wrapf(err, "sqlite: update record %s", recordID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return NewError(s.ID(), false, eris.Wrap(err, "sqlite: rows affected"))
	}
	if n == 0 {
		return NewError(s.ID(), false, eris.Errorf("record not found: %s", recordID))
	}
	return nil
}

var _ Store = (*SQLiteArchive)(nil)
