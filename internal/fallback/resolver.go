package fallback

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/resilience"
	"github.com/sells-group/classify-cli/internal/taxonomy"
	"github.com/sells-group/classify-cli/pkg/perplexity"
)

const (
	// DefaultMaxSources caps how many search citations feed the classifier.
	DefaultMaxSources = 5

	// DefaultSnippetLength caps each citation's content.
	DefaultSnippetLength = 500
)

// SearchClassifier classifies a single vendor from search evidence.
type SearchClassifier interface {
	ClassifyFromSearch(ctx context.Context, vendor string, snippets []string, categories []*taxonomy.Node, acc *model.UsageAccumulator) (model.LevelResult, error)
}

// Resolver runs the web-search fallback for vendors the hierarchical pass
// could not place at all. One search and at most one classification call
// per vendor; the result lands in a SearchResolution, never in the
// vendor's Levels slice.
type Resolver struct {
	search        perplexity.Client
	cls           SearchClassifier
	retry         resilience.RetryConfig
	maxSources    int
	snippetLength int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxSources caps retained search citations per vendor.
func WithMaxSources(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxSources = n
		}
	}
}

// WithSnippetLength caps each citation's content length.
func WithSnippetLength(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.snippetLength = n
		}
	}
}

// New creates a Resolver.
func New(search perplexity.Client, cls SearchClassifier, opts ...Option) *Resolver {
	r := &Resolver{
		search:        search,
		cls:           cls,
		retry:         resilience.DefaultRetryConfig(),
		maxSources:    DefaultMaxSources,
		snippetLength: DefaultSnippetLength,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve attempts to place one unresolved vendor into a top-level category
// via web search. It never fails per vendor: search and classification
// problems are recorded on the returned SearchResolution. An error is
// returned only on context cancellation.
func (r *Resolver) Resolve(
	ctx context.Context,
	vendor string,
	level1 []*taxonomy.Node,
	acc *model.UsageAccumulator,
) (*model.SearchResolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "fallback: cancelled")
	}

	query := vendor + " company business type industry"

	retryCfg := r.retry
	retryCfg.OnRetry = resilience.RetryLogger("perplexity", "search")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*perplexity.SearchResponse, error) {
		return r.search.Search(ctx, query)
	})
	if acc != nil {
		acc.Add(model.TokenUsage{SearchQueries: 1})
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "fallback: cancelled")
		}
		zap.L().Warn("fallback: search failed",
			zap.String("vendor", vendor),
			zap.Error(err),
		)
		return &model.SearchResolution{Error: "search failed: " + err.Error()}, nil
	}

	sources := trimSources(resp.Sources, r.maxSources, r.snippetLength)
	if len(sources) == 0 {
		zap.L().Info("fallback: no search results", zap.String("vendor", vendor))
		return &model.SearchResolution{Error: "no search results found"}, nil
	}

	snippets := make([]string, 0, len(sources))
	for _, s := range sources {
		snippets = append(snippets, s.Snippet)
	}

	result, err := r.cls.ClassifyFromSearch(ctx, vendor, snippets, level1, acc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "fallback: cancelled")
		}
		return &model.SearchResolution{Sources: sources, Error: err.Error()}, nil
	}

	return &model.SearchResolution{
		Sources:          sources,
		ResolvedCategory: &result,
	}, nil
}

func trimSources(in []perplexity.Source, maxSources, snippetLength int) []model.SearchSource {
	if len(in) > maxSources {
		in = in[:maxSources]
	}
	out := make([]model.SearchSource, 0, len(in))
	for _, s := range in {
		content := s.Content
		if len(content) > snippetLength {
			content = content[:snippetLength]
		}
		out = append(out, model.SearchSource{
			Title:   s.Title,
			URL:     s.URL,
			Snippet: content,
		})
	}
	return out
}
