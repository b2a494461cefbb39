package sink

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresArchive creates a PostgresArchive backed by pgxmock.
func newMockPostgresArchive(t *testing.T) (*PostgresArchive, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresArchiveWithQuerier(mock), mock
}

func TestPostgresArchive_FindByKey_Found(t *testing.T) {
	a, mock := newMockPostgresArchive(t)

	mock.ExpectQuery(`SELECT id FROM records WHERE sink = \$1 AND dedup_key = \$2`).
		WithArgs("archive", "https://example.com/jobs/1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("rec-1"))

	id, ok, err := a.FindByKey(context.Background(), "https://example.com/jobs/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rec-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArchive_FindByKey_NotFound(t *testing.T) {
	a, mock := newMockPostgresArchive(t)

	mock.ExpectQuery(`SELECT id FROM records`).
		WithArgs("archive", "https://nowhere.example").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := a.FindByKey(context.Background(), "https://nowhere.example")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArchive_Create(t *testing.T) {
	a, mock := newMockPostgresArchive(t)

	mock.ExpectExec(`INSERT INTO records`).
		WithArgs(pgxmock.AnyArg(), "archive", "https://example.com/jobs/1",
			"Go Engineer", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := a.Create(context.Background(), archiveRecord("https://example.com/jobs/1", "Go Engineer"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArchive_Update_NotFound(t *testing.T) {
	a, mock := newMockPostgresArchive(t)

	mock.ExpectExec(`UPDATE records SET`).
		WithArgs("x", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := a.Update(context.Background(), "missing-id", archiveRecord("https://example.com/jobs/1", "x"))
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "archive", se.Sink)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArchive_Migrate(t *testing.T) {
	a, mock := newMockPostgresArchive(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS records`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, a.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
