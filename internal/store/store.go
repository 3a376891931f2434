package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/classify-cli/internal/model"
)

// Sentinel errors shared by both store implementations.
var (
	ErrJobNotFound = eris.New("store: job not found")

	// ErrJobTerminal is returned when a write targets a job that already
	// reached completed or failed. Terminal jobs are immutable.
	ErrJobTerminal = eris.New("store: job is terminal")
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines job persistence for the classification pipeline. All writes
// after CreateJob are guarded on non-terminal status, so a cancelled job
// can never be revived by a straggling worker.
type Store interface {
	// CreateJob persists a new pending job along with its verbatim vendor
	// list.
	CreateJob(ctx context.Context, vendors []string) (*model.Job, error)

	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	GetJobVendors(ctx context.Context, jobID string) ([]string, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// UpdateJobProgress advances status, stage and progress in one write.
	UpdateJobProgress(ctx context.Context, jobID string, status model.JobStatus, stage model.JobStage, progress float64) error

	// CompleteJob marks the job completed with its final stats and the
	// artifact path.
	CompleteJob(ctx context.Context, jobID string, stats model.JobStats, artifactPath string) error

	// FailJob marks the job failed with an error message. Failing an
	// already-terminal job is a no-op.
	FailJob(ctx context.Context, jobID string, message string) error

	// CancelJob marks a non-terminal job failed with the given reason. It
	// reports whether this call performed the transition; cancelling a
	// terminal job returns false with no error.
	CancelJob(ctx context.Context, jobID string, reason string) (bool, error)

	Migrate(ctx context.Context) error
	Close() error
}
