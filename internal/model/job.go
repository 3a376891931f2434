package model

import "time"

// JobStatus represents the lifecycle state of a classification job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobStage identifies the pipeline stage a job is currently in. Stages
// advance monotonically; the orchestrator is the only writer.
type JobStage string

const (
	StageIngestion        JobStage = "ingestion"
	StageNormalization    JobStage = "normalization"
	StageClassifyL1       JobStage = "classify_l1"
	StageClassifyL2       JobStage = "classify_l2"
	StageClassifyL3       JobStage = "classify_l3"
	StageClassifyL4       JobStage = "classify_l4"
	StageSearch           JobStage = "search"
	StageResultGeneration JobStage = "result_generation"
)

// StageProgress maps each stage boundary to the job's progress fraction.
// Progress is recomputed only at these fixed checkpoints, never per vendor.
var StageProgress = map[JobStage]float64{
	StageIngestion:        0.05,
	StageNormalization:    0.10,
	StageClassifyL1:       0.30,
	StageClassifyL2:       0.50,
	StageClassifyL3:       0.65,
	StageClassifyL4:       0.75,
	StageSearch:           0.90,
	StageResultGeneration: 1.0,
}

// ClassifyStage returns the stage constant for a taxonomy level.
func ClassifyStage(level int) JobStage {
	switch level {
	case 1:
		return StageClassifyL1
	case 2:
		return StageClassifyL2
	case 3:
		return StageClassifyL3
	default:
		return StageClassifyL4
	}
}

// Job is the persisted record of one classification run over a vendor list.
type Job struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Stage        JobStage  `json:"stage"`
	Progress     float64   `json:"progress"`
	Stats        JobStats  `json:"stats"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobStats aggregates the final counters reported on a terminal job.
type JobStats struct {
	TotalVendors    int        `json:"total_vendors"`
	UniqueVendors   int        `json:"unique_vendors"`
	ClassifiedL1    int        `json:"classified_l1"`
	ClassifiedL2    int        `json:"classified_l2"`
	ClassifiedL3    int        `json:"classified_l3"`
	ClassifiedL4    int        `json:"classified_l4"`
	SearchAttempted int        `json:"search_attempted"`
	SearchResolved  int        `json:"search_resolved"`
	Unresolved      int        `json:"unresolved"`
	Usage           TokenUsage `json:"usage"`
	EstimatedCost   float64    `json:"estimated_cost_usd"`
}
