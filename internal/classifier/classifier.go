package classifier

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/resilience"
	"github.com/sells-group/classify-cli/internal/taxonomy"
	"github.com/sells-group/classify-cli/pkg/anthropic"
)

// DefaultBatchSize bounds how many vendors ride in one LLM request.
const DefaultBatchSize = 10

// BatchClassifier sends one batch of vendors to the LLM at one taxonomy
// level and turns the structured answer into per-vendor outcomes. Transport
// retries live here; nothing above this layer retries.
type BatchClassifier struct {
	llm       anthropic.Client
	retry     resilience.RetryConfig
	batchSize int
}

// BatchResult maps each input vendor to its LevelResult, plus the token
// cost of this one call.
type BatchResult struct {
	Results map[string]model.LevelResult
	Usage   model.TokenUsage
}

// New creates a BatchClassifier. batchSize <= 0 selects DefaultBatchSize.
func New(llm anthropic.Client, batchSize int) *BatchClassifier {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchClassifier{
		llm:       llm,
		retry:     resilience.DefaultRetryConfig(),
		batchSize: batchSize,
	}
}

// BatchSize returns the configured per-request vendor cap.
func (c *BatchClassifier) BatchSize() int {
	return c.batchSize
}

// Classify runs one classification call for up to batchSize vendors against
// the given candidate categories. Every input vendor appears in the result
// map: vendors the model skipped are marked not-possible with
// ReasonNoResponse, and a batch-level failure (schema violation or
// exhausted retries) marks all of them with ReasonInvalidResponse. The
// usage delta is also accumulated onto acc. An error is returned only for
// invalid arguments or context cancellation.
func (c *BatchClassifier) Classify(
	ctx context.Context,
	vendors []string,
	level int,
	parentID string,
	categories []*taxonomy.Node,
	acc *model.UsageAccumulator,
) (BatchResult, error) {
	if len(vendors) == 0 {
		return BatchResult{}, eris.New("classifier: empty vendor batch")
	}
	if len(vendors) > c.batchSize {
		return BatchResult{}, eris.Errorf("classifier: batch of %d exceeds limit %d", len(vendors), c.batchSize)
	}
	if level < 1 || level > taxonomy.MaxDepth {
		return BatchResult{}, eris.Errorf("classifier: invalid level %d", level)
	}
	if (level > 1) != (parentID != "") {
		return BatchResult{}, eris.Errorf("classifier: parent category required iff level > 1 (level=%d, parent=%q)", level, parentID)
	}
	if len(categories) == 0 {
		return BatchResult{}, eris.New("classifier: no candidate categories")
	}

	log := zap.L().With(
		zap.Int("level", level),
		zap.String("parent", parentID),
		zap.Int("vendors", len(vendors)),
	)

	req := anthropic.CompletionRequest{
		System:      systemPrompt,
		User:        buildUserPrompt(vendors, level, parentID, categories),
		CacheSystem: true,
	}

	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "classify_batch")

	var usage model.TokenUsage
	parsed, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*batchResponse, error) {
		comp, callErr := c.llm.Complete(ctx, req)
		if callErr != nil {
			return nil, callErr
		}
		usage.Add(model.TokenUsage{
			PromptTokens:     comp.Usage.PromptTokens,
			CompletionTokens: comp.Usage.CompletionTokens,
			LLMCalls:         1,
		})
		return parseBatchResponse(comp.Content)
	})

	if acc != nil {
		defer func() { acc.Add(usage) }()
	}

	if err != nil {
		if ctx.Err() != nil {
			return BatchResult{}, eris.Wrap(ctx.Err(), "classifier: cancelled")
		}
		// Hard batch failure: every vendor degrades to data so sibling
		// batches keep going.
		if errors.Is(err, errSchemaInvalid) {
			log.Warn("classifier: invalid model response", zap.Error(err))
		} else {
			log.Warn("classifier: batch failed after retries", zap.Error(err))
		}
		return BatchResult{Results: failAll(vendors, level, model.ReasonInvalidResponse), Usage: usage}, nil
	}

	return BatchResult{Results: c.mapResults(vendors, level, parsed, categories, log), Usage: usage}, nil
}

// mapResults reconciles the model's classifications against the input
// vendor list and the offered categories.
func (c *BatchClassifier) mapResults(
	vendors []string,
	level int,
	resp *batchResponse,
	categories []*taxonomy.Node,
	log *zap.Logger,
) map[string]model.LevelResult {
	valid := make(map[string]*taxonomy.Node, len(categories))
	for _, cat := range categories {
		valid[cat.ID] = cat
	}

	byVendor := make(map[string]classification, len(resp.Classifications))
	for _, cl := range resp.Classifications {
		byVendor[model.NormalizeVendor(cl.VendorName)] = cl
	}

	out := make(map[string]model.LevelResult, len(vendors))
	for _, v := range vendors {
		cl, ok := byVendor[model.NormalizeVendor(v)]
		if !ok {
			log.Debug("classifier: vendor missing from response", zap.String("vendor", v))
			out[v] = model.LevelResult{
				Level:                     level,
				ClassificationNotPossible: true,
				Reason:                    model.ReasonNoResponse,
			}
			continue
		}

		if cl.ClassificationNotPossible {
			reason := cl.NotPossibleReason
			if reason == "" {
				reason = "model declined to classify"
			}
			out[v] = model.LevelResult{
				Level:                     level,
				ClassificationNotPossible: true,
				Reason:                    reason,
			}
			continue
		}

		cat, known := valid[cl.CategoryID]
		if !known {
			// Fail closed on categories outside the offered list rather
			// than letting a hallucinated id leak into the tree walk.
			log.Warn("classifier: category outside offered list",
				zap.String("vendor", v),
				zap.String("category_id", cl.CategoryID),
			)
			out[v] = model.LevelResult{
				Level:                     level,
				ClassificationNotPossible: true,
				Reason:                    model.ReasonInvalidResponse,
			}
			continue
		}

		name := cl.CategoryName
		if name == "" {
			name = cat.Name
		}
		out[v] = model.LevelResult{
			Level:        level,
			CategoryID:   cl.CategoryID,
			CategoryName: name,
			Confidence:   clamp01(cl.Confidence),
		}
	}
	return out
}

func failAll(vendors []string, level int, reason string) map[string]model.LevelResult {
	out := make(map[string]model.LevelResult, len(vendors))
	for _, v := range vendors {
		out[v] = model.LevelResult{
			Level:                     level,
			ClassificationNotPossible: true,
			Reason:                    reason,
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
