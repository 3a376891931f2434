package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/classify-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func jobColumns() []string {
	return []string{"id", "status", "stage", "progress", "stats", "error_message", "artifact_path", "created_at", "updated_at"}
}

func TestPostgres_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), "pending", "ingestion", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), []string{"Acme Inc"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, status, stage, progress, stats, error_message, artifact_path, created_at, updated_at`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobColumns()).
			AddRow("job-1", "processing", "classify_l2", 0.5, []byte(`{"total_vendors":3}`), "", "", now, now))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Equal(t, model.StageClassifyL2, job.Stage)
	assert.Equal(t, 3, job.Stats.TotalVendors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, stage`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateJobProgress_Guarded(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status = \$1, stage = \$2, progress = \$3`).
		WithArgs("processing", "classify_l1", 0.3, pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateJobProgress(context.Background(), "job-1", model.JobStatusProcessing, model.StageClassifyL1, 0.3)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateJobProgress_Terminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("processing", "search", 0.9, pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT id, status, stage`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobColumns()).
			AddRow("job-1", "failed", "search", 0.9, []byte(nil), "cancelled by user", "", now, now))

	err := s.UpdateJobProgress(context.Background(), "job-1", model.JobStatusProcessing, model.StageSearch, 0.9)
	assert.ErrorIs(t, err, ErrJobTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CancelJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status = \$1, error_message = \$2`).
		WithArgs("failed", "cancelled by user", pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	cancelled, err := s.CancelJob(context.Background(), "job-1", "cancelled by user")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CancelJob_AlreadyTerminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("failed", "again", pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT id, status, stage`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobColumns()).
			AddRow("job-1", "completed", "result_generation", 1.0, []byte(nil), "", "/out.xlsx", now, now))

	cancelled, err := s.CancelJob(context.Background(), "job-1", "again")
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status = \$1, stage = \$2, progress = 1\.0`).
		WithArgs("completed", "result_generation", pgxmock.AnyArg(), "/out.xlsx", pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteJob(context.Background(), "job-1", model.JobStats{TotalVendors: 3}, "/out.xlsx")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListJobs_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, status, stage, progress, stats, error_message, artifact_path, created_at, updated_at`).
		WithArgs("failed", 100).
		WillReturnRows(pgxmock.NewRows(jobColumns()).
			AddRow("job-2", "failed", "classify_l1", 0.3, []byte(nil), "boom", "", now, now))

	jobs, err := s.ListJobs(context.Background(), JobFilter{Status: model.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "boom", jobs[0].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJobVendors(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT vendors FROM jobs`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"vendors"}).AddRow([]byte(`["Acme Inc","acme inc"]`)))

	vendors, err := s.GetJobVendors(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Inc", "acme inc"}, vendors)
	assert.NoError(t, mock.ExpectationsWereMet())
}
