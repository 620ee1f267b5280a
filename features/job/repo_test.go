package job_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sokoni/backend/features/job"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO jobs (item_id, handler, payload, error, retries) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`)).
		WithArgs("1234567890123456", "promoter", []byte(`{"item_id":"1234567890123456"}`), "storage unavailable", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("job-1", created))

	repo := job.NewPostgresRepo(db)
	j := &job.Job{
		ItemID:  "1234567890123456",
		Handler: "promoter",
		Payload: []byte(`{"item_id":"1234567890123456"}`),
		Error:   "storage unavailable",
	}
	require.NoError(t, repo.Save(context.Background(), j))

	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, created, j.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "item_id", "handler", "payload", "error", "retries", "created_at"}).
		AddRow("job-1", "1234567890123456", "promoter", []byte(`{}`), "storage unavailable", 1, time.Now()).
		AddRow("job-2", "2222222222222222", "promoter", []byte(`{}`), "timeout", 0, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, item_id, handler, payload, error, retries, created_at FROM jobs ORDER BY created_at DESC`)).
		WillReturnRows(rows)

	repo := job.NewPostgresRepo(db)
	jobs, err := repo.List(context.Background())

	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, 1, jobs[0].Retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, item_id, handler, payload, error, retries, created_at FROM jobs WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := job.NewPostgresRepo(db)
	_, err = repo.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM jobs WHERE id = $1`)).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := job.NewPostgresRepo(db)
	require.NoError(t, repo.Delete(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	repo := job.NewPostgresRepo(db)
	count, err := repo.Count(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
