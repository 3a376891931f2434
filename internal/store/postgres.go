package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/classify-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status        TEXT NOT NULL DEFAULT 'pending',
	stage         TEXT NOT NULL DEFAULT 'ingestion',
	progress      DOUBLE PRECISION NOT NULL DEFAULT 0,
	vendors       JSONB NOT NULL,
	stats         JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	artifact_path TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, vendors []string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	vendorsJSON, err := json.Marshal(vendors)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal vendors")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, stage, progress, vendors, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, $4, $5, $6)`,
		id, string(model.JobStatusPending), string(model.StageIngestion), vendorsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		Stage:     model.StageIngestion,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	var statsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, stage, progress, stats, error_message, artifact_path, created_at, updated_at
		 FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.Status, &j.Stage, &j.Progress, &statsJSON,
		&j.ErrorMessage, &j.ArtifactPath, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &j.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &j, nil
}

func (s *PostgresStore) GetJobVendors(ctx context.Context, jobID string) ([]string, error) {
	var vendorsJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT vendors FROM jobs WHERE id = $1`, jobID).Scan(&vendorsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get vendors %s", jobID)
	}

	var vendors []string
	if err := json.Unmarshal(vendorsJSON, &vendors); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal vendors")
	}
	return vendors, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, status, stage, progress, stats, error_message, artifact_path, created_at, updated_at
	          FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var statsJSON []byte

		if err := rows.Scan(&j.ID, &j.Status, &j.Stage, &j.Progress, &statsJSON,
			&j.ErrorMessage, &j.ArtifactPath, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		if len(statsJSON) > 0 {
			if err := json.Unmarshal(statsJSON, &j.Stats); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal stats")
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, status model.JobStatus, stage model.JobStage, progress float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, stage = $2, progress = $3, updated_at = $4
		 WHERE id = $5 AND status NOT IN ('completed', 'failed')`,
		string(status), string(stage), progress, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", jobID)
	}
	return s.checkGuarded(ctx, tag, jobID)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, stats model.JobStats, artifactPath string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, stage = $2, progress = 1.0, stats = $3, artifact_path = $4, updated_at = $5
		 WHERE id = $6 AND status NOT IN ('completed', 'failed')`,
		string(model.JobStatusCompleted), string(model.StageResultGeneration),
		statsJSON, artifactPath, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	return s.checkGuarded(ctx, tag, jobID)
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = $3
		 WHERE id = $4 AND status NOT IN ('completed', 'failed')`,
		string(model.JobStatusFailed), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CancelJob(ctx context.Context, jobID string, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = $3
		 WHERE id = $4 AND status NOT IN ('completed', 'failed')`,
		string(model.JobStatusFailed), reason, time.Now().UTC(), jobID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: cancel job %s", jobID)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	if _, err := s.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) checkGuarded(ctx context.Context, tag pgconn.CommandTag, jobID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return ErrJobTerminal
}
