package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/classify-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'pending',
	stage         TEXT NOT NULL DEFAULT 'ingestion',
	progress      REAL NOT NULL DEFAULT 0,
	vendors       TEXT NOT NULL,
	stats         TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	artifact_path TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, vendors []string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	vendorsJSON, err := json.Marshal(vendors)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal vendors")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, stage, progress, vendors, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?)`,
		id, string(model.JobStatusPending), string(model.StageIngestion), string(vendorsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		Stage:     model.StageIngestion,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, stage, progress, stats, error_message, artifact_path, created_at, updated_at
		 FROM jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

func (s *SQLiteStore) GetJobVendors(ctx context.Context, jobID string) ([]string, error) {
	var vendorsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT vendors FROM jobs WHERE id = ?`, jobID).Scan(&vendorsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get vendors %s", jobID)
	}

	var vendors []string
	if err := json.Unmarshal([]byte(vendorsJSON), &vendors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vendors")
	}
	return vendors, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, status, stage, progress, stats, error_message, artifact_path, created_at, updated_at
	          FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, status model.JobStatus, stage model.JobStage, progress float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, stage = ?, progress = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		string(status), string(stage), progress, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", jobID)
	}
	return s.checkGuarded(ctx, res, jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, stats model.JobStats, artifactPath string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, stage = ?, progress = 1.0, stats = ?, artifact_path = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		string(model.JobStatusCompleted), string(model.StageResultGeneration),
		string(statsJSON), artifactPath, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return s.checkGuarded(ctx, res, jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		string(model.JobStatusFailed), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Already terminal or missing; failing a finished job is a no-op.
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CancelJob(ctx context.Context, jobID string, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		string(model.JobStatusFailed), reason, time.Now().UTC(), jobID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: cancel job %s", jobID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return true, nil
	}

	if _, err := s.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	return false, nil
}

// checkGuarded resolves a zero-row guarded update into the right sentinel.
func (s *SQLiteStore) checkGuarded(ctx context.Context, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return ErrJobTerminal
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var statsJSON sql.NullString

	err := row.Scan(&j.ID, &j.Status, &j.Stage, &j.Progress, &statsJSON,
		&j.ErrorMessage, &j.ArtifactPath, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &j.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	return &j, nil
}
