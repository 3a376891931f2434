package engine

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/classify-cli/internal/classifier"
	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/taxonomy"
)

// DefaultMaxConcurrentBatches bounds in-flight LLM calls per level.
const DefaultMaxConcurrentBatches = 5

// Classifier is the batch classification dependency.
type Classifier interface {
	Classify(ctx context.Context, vendors []string, level int, parentID string, categories []*taxonomy.Node, acc *model.UsageAccumulator) (classifier.BatchResult, error)
	BatchSize() int
}

// Engine walks unique vendors down the taxonomy one level at a time.
// Vendors that fail a level keep their partial outcome and drop out of the
// walk; the rest regroup under their awarded category for the next level.
type Engine struct {
	cls           Classifier
	tree          *taxonomy.Tree
	maxConcurrent int
	acc           *model.UsageAccumulator
	onLevel       func(level int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxConcurrentBatches caps concurrent batch calls within a level.
func WithMaxConcurrentBatches(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithUsage accumulates token usage from every batch onto acc.
func WithUsage(acc *model.UsageAccumulator) Option {
	return func(e *Engine) {
		e.acc = acc
	}
}

// WithLevelHook calls fn after each level fully completes.
func WithLevelHook(fn func(level int)) Option {
	return func(e *Engine) {
		e.onLevel = fn
	}
}

// New creates an Engine over the given taxonomy.
func New(cls Classifier, tree *taxonomy.Tree, opts ...Option) *Engine {
	e := &Engine{
		cls:           cls,
		tree:          tree,
		maxConcurrent: DefaultMaxConcurrentBatches,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run classifies the given unique normalized vendors through all four
// taxonomy levels and returns one Outcome per vendor. It returns an error
// only on context cancellation; every classification failure degrades into
// the vendor's outcome instead.
func (e *Engine) Run(ctx context.Context, vendors []string) (map[string]*model.Outcome, error) {
	outcomes := make(map[string]*model.Outcome, len(vendors))
	for _, v := range vendors {
		outcomes[v] = &model.Outcome{NormalizedName: v}
	}
	if len(vendors) == 0 {
		return outcomes, nil
	}

	// Vendors still descending, grouped by the parent category they won at
	// the previous level. Level 1 starts with everyone under the root.
	active := map[string][]string{"": vendors}

	for level := 1; level <= taxonomy.MaxDepth && len(active) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "engine: cancelled before level %d", level)
		}

		results, err := e.runLevel(ctx, level, active)
		if err != nil {
			return nil, err
		}

		next := make(map[string][]string)
		for vendor, res := range results {
			outcomes[vendor].Levels = append(outcomes[vendor].Levels, res)
			if res.Succeeded() {
				next[res.CategoryID] = append(next[res.CategoryID], vendor)
			}
		}
		active = next

		if e.onLevel != nil {
			e.onLevel(level)
		}
	}

	return outcomes, nil
}

// runLevel classifies every active group at one level, fanning batches out
// across a bounded pool.
func (e *Engine) runLevel(ctx context.Context, level int, groups map[string][]string) (map[string]model.LevelResult, error) {
	var mu sync.Mutex
	results := make(map[string]model.LevelResult)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	for parentID, groupVendors := range groups {
		categories := e.tree.Children(parentID, level)
		if len(categories) == 0 {
			// Leaf gap: the taxonomy simply stops here for this branch.
			mu.Lock()
			for _, v := range groupVendors {
				results[v] = model.LevelResult{
					Level:                     level,
					ClassificationNotPossible: true,
					Reason:                    model.ReasonNoSubcategories,
				}
			}
			mu.Unlock()
			continue
		}

		for _, batch := range chunk(groupVendors, e.cls.BatchSize()) {
			g.Go(func() error {
				res, err := e.cls.Classify(gctx, batch, level, parentID, categories, e.acc)
				if err != nil {
					return err
				}
				mu.Lock()
				for v, lr := range res.Results {
					results[v] = lr
				}
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "engine: level %d", level)
	}

	zap.L().Info("engine: level complete",
		zap.Int("level", level),
		zap.Int("groups", len(groups)),
		zap.Int("classified", len(results)),
	)
	return results, nil
}

func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
