package classifier

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/resilience"
	"github.com/sells-group/classify-cli/internal/taxonomy"
	"github.com/sells-group/classify-cli/pkg/anthropic"
)

// ClassifyFromSearch classifies a single vendor against the top-level
// categories using web-search snippets as evidence. It never fails per
// vendor: any model-side problem comes back as a not-possible LevelResult
// with ReasonInvalidSearch. An error is returned only for invalid arguments
// or context cancellation.
func (c *BatchClassifier) ClassifyFromSearch(
	ctx context.Context,
	vendor string,
	snippets []string,
	categories []*taxonomy.Node,
	acc *model.UsageAccumulator,
) (model.LevelResult, error) {
	if vendor == "" {
		return model.LevelResult{}, eris.New("classifier: empty vendor")
	}
	if len(snippets) == 0 {
		return model.LevelResult{}, eris.New("classifier: no search snippets")
	}
	if len(categories) == 0 {
		return model.LevelResult{}, eris.New("classifier: no candidate categories")
	}

	req := anthropic.CompletionRequest{
		System:      searchSystemPrompt,
		User:        buildSearchUserPrompt(vendor, snippets, categories),
		CacheSystem: true,
	}

	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "classify_search")

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
			return model.LevelResult{}, eris.Wrap(ctx.Err(), "classifier: cancelled")
		}
		zap.L().Warn("classifier: search classification failed",
			zap.String("vendor", vendor),
			zap.Error(err),
		)
		return searchInvalid(), nil
	}

	if len(parsed.Classifications) == 0 {
		return searchInvalid(), nil
	}
	cl := parsed.Classifications[0]

	if cl.ClassificationNotPossible {
		reason := cl.NotPossibleReason
		if reason == "" {
			reason = "model declined to classify"
		}
		return model.LevelResult{
			Level:                     1,
			ClassificationNotPossible: true,
			Reason:                    reason,
		}, nil
	}

	valid := make(map[string]*taxonomy.Node, len(categories))
	for _, cat := range categories {
		valid[cat.ID] = cat
	}
	cat, known := valid[cl.CategoryID]
	if !known {
		zap.L().Warn("classifier: search category outside offered list",
			zap.String("vendor", vendor),
			zap.String("category_id", cl.CategoryID),
		)
		return searchInvalid(), nil
	}

	name := cl.CategoryName
	if name == "" {
		name = cat.Name
	}
	return model.LevelResult{
		Level:        1,
		CategoryID:   cl.CategoryID,
		CategoryName: name,
		Confidence:   clamp01(cl.Confidence),
	}, nil
}

func searchInvalid() model.LevelResult {
	return model.LevelResult{
		Level:                     1,
		ClassificationNotPossible: true,
		Reason:                    model.ReasonInvalidSearch,
	}
}
