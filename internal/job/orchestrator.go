package job

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/classify-cli/internal/cost"
	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/store"
	"github.com/sells-group/classify-cli/internal/taxonomy"
)

// CancelReason is the error message recorded on a user-cancelled job.
const CancelReason = "cancelled by user"

// EngineRunner walks unique vendors through the taxonomy.
type EngineRunner interface {
	Run(ctx context.Context, vendors []string) (map[string]*model.Outcome, error)
}

// EngineFactory builds a per-job engine wired to the job's usage
// accumulator and level checkpoint hook.
type EngineFactory func(acc *model.UsageAccumulator, onLevel func(level int)) EngineRunner

// FallbackResolver runs the web-search fallback for one unresolved vendor.
type FallbackResolver interface {
	Resolve(ctx context.Context, vendor string, level1 []*taxonomy.Node, acc *model.UsageAccumulator) (*model.SearchResolution, error)
}

// Sink writes the final artifact and returns its path.
type Sink func(jobID string, rows []model.OutputRow) (string, error)

// Orchestrator owns the job state machine. It is the only writer of job
// status, stage and progress; everything below it reports outcomes as data.
type Orchestrator struct {
	store         store.Store
	tree          *taxonomy.Tree
	newEngine     EngineFactory
	resolver      FallbackResolver
	sink          Sink
	calc          *cost.Calculator
	modelName     string
	maxConcurrent int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCostCalculator enables spend estimation on the final stats.
func WithCostCalculator(calc *cost.Calculator, modelName string) Option {
	return func(o *Orchestrator) {
		o.calc = calc
		o.modelName = modelName
	}
}

// WithMaxConcurrentSearches caps concurrent fallback resolutions.
func WithMaxConcurrentSearches(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(st store.Store, tree *taxonomy.Tree, newEngine EngineFactory, resolver FallbackResolver, sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         st,
		tree:          tree,
		newEngine:     newEngine,
		resolver:      resolver,
		sink:          sink,
		maxConcurrent: 5,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit persists a new pending job for the given vendor list.
func (o *Orchestrator) Submit(ctx context.Context, vendors []string) (*model.Job, error) {
	if len(vendors) == 0 {
		return nil, eris.New("job: empty vendor list")
	}
	return o.store.CreateJob(ctx, vendors)
}

// Cancel marks a non-terminal job failed with CancelReason. It reports
// whether this call performed the transition.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, error) {
	return o.store.CancelJob(ctx, jobID, CancelReason)
}

// Run executes one job to a terminal state. Stage failures mark the job
// failed; a cancellation observed at a stage boundary stops the run without
// overwriting the cancelled state. The returned error reflects the run for
// the caller's logging, never a job-level retry.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	log := zap.L().With(zap.String("job_id", jobID))

	err := o.run(ctx, log, jobID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrJobTerminal):
		// Cancelled underneath us. The cancel already wrote the terminal
		// state; leave it untouched.
		log.Info("job: stopped on cancelled job")
		return nil
	default:
		log.Error("job: failed", zap.Error(err))
		// Record the failure even when the run died by context cancellation.
		if failErr := o.store.FailJob(context.WithoutCancel(ctx), jobID, err.Error()); failErr != nil {
			log.Error("job: record failure", zap.Error(failErr))
		}
		return err
	}
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, jobID string) error {
	// Ingestion.
	original, err := o.store.GetJobVendors(ctx, jobID)
	if err != nil {
		return err
	}
	if err := o.checkpoint(ctx, jobID, model.StageIngestion); err != nil {
		return err
	}

	// Normalization.
	unique := model.DeduplicateVendors(original)
	log.Info("job: normalized vendors",
		zap.Int("total", len(original)),
		zap.Int("unique", len(unique)),
	)
	if err := o.checkpoint(ctx, jobID, model.StageNormalization); err != nil {
		return err
	}

	// Classification levels 1 through 4. The level hook records each
	// checkpoint; seeing a cancelled job there stops in-flight work via
	// the derived context.
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var acc model.UsageAccumulator
	eng := o.newEngine(&acc, func(level int) {
		if err := o.checkpoint(runCtx, jobID, model.ClassifyStage(level)); err != nil {
			cancel(err)
		}
	})

	outcomes, err := eng.Run(runCtx, unique)
	if err != nil {
		if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return err
	}
	if cause := context.Cause(runCtx); cause != nil {
		return cause
	}

	// Search fallback for vendors with no successful level at all.
	if err := o.runSearch(runCtx, jobID, outcomes, &acc); err != nil {
		return err
	}
	if err := o.checkpoint(ctx, jobID, model.StageSearch); err != nil {
		return err
	}

	// Result generation.
	rows := Assemble(original, outcomes)
	artifactPath, err := o.sink(jobID, rows)
	if err != nil {
		return eris.Wrap(err, "job: write artifact")
	}

	stats := o.buildStats(original, unique, outcomes, acc.Snapshot())
	if err := o.store.CompleteJob(ctx, jobID, stats, artifactPath); err != nil {
		return err
	}

	log.Info("job: completed",
		zap.Int("unresolved", stats.Unresolved),
		zap.String("artifact", artifactPath),
	)
	return nil
}

// runSearch resolves unplaced vendors through the fallback, fanning out
// across a bounded pool.
func (o *Orchestrator) runSearch(ctx context.Context, jobID string, outcomes map[string]*model.Outcome, acc *model.UsageAccumulator) error {
	var unresolved []*model.Outcome
	for _, outcome := range outcomes {
		if outcome.LastSuccess() == nil {
			unresolved = append(unresolved, outcome)
		}
	}
	if len(unresolved) == 0 {
		return nil
	}

	level1 := o.tree.Children("", 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)
	for _, outcome := range unresolved {
		g.Go(func() error {
			resolution, err := o.resolver.Resolve(gctx, outcome.NormalizedName, level1, acc)
			if err != nil {
				return err
			}
			outcome.Search = resolution
			return nil
		})
	}
	return eris.Wrap(g.Wait(), "job: search fallback")
}

// checkpoint writes the progress value fixed for the completed stage.
func (o *Orchestrator) checkpoint(ctx context.Context, jobID string, stage model.JobStage) error {
	return o.store.UpdateJobProgress(ctx, jobID, model.JobStatusProcessing, stage, model.StageProgress[stage])
}

func (o *Orchestrator) buildStats(original, unique []string, outcomes map[string]*model.Outcome, usage model.TokenUsage) model.JobStats {
	stats := model.JobStats{
		TotalVendors:  len(original),
		UniqueVendors: len(unique),
		Usage:         usage,
	}

	for _, outcome := range outcomes {
		for _, lr := range outcome.Levels {
			if !lr.Succeeded() {
				continue
			}
			switch lr.Level {
			case 1:
				stats.ClassifiedL1++
			case 2:
				stats.ClassifiedL2++
			case 3:
				stats.ClassifiedL3++
			case 4:
				stats.ClassifiedL4++
			}
		}
		if outcome.Search != nil {
			stats.SearchAttempted++
			if outcome.Search.ResolvedCategory != nil && outcome.Search.ResolvedCategory.Succeeded() {
				stats.SearchResolved++
			}
		}
		if !outcome.Resolved() {
			stats.Unresolved++
		}
	}

	if o.calc != nil {
		stats.EstimatedCost = o.calc.EstimateJob(o.modelName, usage)
	}
	return stats
}
