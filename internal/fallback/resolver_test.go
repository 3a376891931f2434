package fallback

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/resilience"
	"github.com/sells-group/classify-cli/internal/taxonomy"
	"github.com/sells-group/classify-cli/pkg/perplexity"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Search(ctx context.Context, query string) (*perplexity.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.SearchResponse), args.Error(1)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) ClassifyFromSearch(ctx context.Context, vendor string, snippets []string, categories []*taxonomy.Node, acc *model.UsageAccumulator) (model.LevelResult, error) {
	args := m.Called(ctx, vendor, snippets, categories, acc)
	return args.Get(0).(model.LevelResult), args.Error(1)
}

func level1Categories() []*taxonomy.Node {
	return []*taxonomy.Node{
		{ID: "11", Name: "Agriculture", Level: 1},
		{ID: "23", Name: "Construction", Level: 1},
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1.0,
	}
}

func TestResolve(t *testing.T) {
	search := new(mockSearch)
	search.On("Search", mock.Anything, "acme inc company business type industry").Return(&perplexity.SearchResponse{
		Sources: []perplexity.Source{
			{Title: "Acme - About", URL: "https://acme.example", Content: "Acme builds houses."},
		},
		Answer: "Acme is a construction company.",
	}, nil).Once()

	cls := new(mockClassifier)
	cls.On("ClassifyFromSearch", mock.Anything, "acme inc", []string{"Acme builds houses."}, mock.Anything, mock.Anything).
		Return(model.LevelResult{Level: 1, CategoryID: "23", CategoryName: "Construction", Confidence: 0.8}, nil).Once()

	r := New(search, cls)
	r.retry = fastRetry()

	var acc model.UsageAccumulator
	res, err := r.Resolve(context.Background(), "acme inc", level1Categories(), &acc)
	require.NoError(t, err)

	require.NotNil(t, res.ResolvedCategory)
	assert.Equal(t, "23", res.ResolvedCategory.CategoryID)
	assert.Empty(t, res.Error)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "https://acme.example", res.Sources[0].URL)
	assert.Equal(t, int64(1), acc.Snapshot().SearchQueries)
	search.AssertExpectations(t)
	cls.AssertExpectations(t)
}

func TestResolve_ZeroSourcesSkipsLLM(t *testing.T) {
	search := new(mockSearch)
	search.On("Search", mock.Anything, mock.Anything).Return(&perplexity.SearchResponse{}, nil).Once()

	cls := new(mockClassifier)

	r := New(search, cls)
	r.retry = fastRetry()

	res, err := r.Resolve(context.Background(), "ghost vendor", level1Categories(), nil)
	require.NoError(t, err)

	assert.Nil(t, res.ResolvedCategory)
	assert.Equal(t, "no search results found", res.Error)
	cls.AssertNotCalled(t, "ClassifyFromSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_SearchFailureDegradesToData(t *testing.T) {
	search := new(mockSearch)
	search.On("Search", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(assert.AnError, 503))

	r := New(search, new(mockClassifier))
	r.retry = fastRetry()

	res, err := r.Resolve(context.Background(), "acme inc", level1Categories(), nil)
	require.NoError(t, err)

	assert.Nil(t, res.ResolvedCategory)
	assert.True(t, strings.HasPrefix(res.Error, "search failed:"))
	search.AssertNumberOfCalls(t, "Search", 3)
}

func TestResolve_SourceTrimming(t *testing.T) {
	long := strings.Repeat("x", 900)
	var sources []perplexity.Source
	for range 8 {
		sources = append(sources, perplexity.Source{Title: "t", URL: "u", Content: long})
	}

	search := new(mockSearch)
	search.On("Search", mock.Anything, mock.Anything).Return(&perplexity.SearchResponse{Sources: sources}, nil).Once()

	cls := new(mockClassifier)
	cls.On("ClassifyFromSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.LevelResult{Level: 1, CategoryID: "11", Confidence: 0.5}, nil).Once()

	r := New(search, cls, WithMaxSources(5), WithSnippetLength(500))
	r.retry = fastRetry()

	res, err := r.Resolve(context.Background(), "acme inc", level1Categories(), nil)
	require.NoError(t, err)

	require.Len(t, res.Sources, 5)
	for _, s := range res.Sources {
		assert.Len(t, s.Snippet, 500)
	}
}

func TestResolve_NotPossibleStillRecorded(t *testing.T) {
	search := new(mockSearch)
	search.On("Search", mock.Anything, mock.Anything).Return(&perplexity.SearchResponse{
		Sources: []perplexity.Source{{Title: "t", URL: "u", Content: "c"}},
	}, nil).Once()

	cls := new(mockClassifier)
	cls.On("ClassifyFromSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.LevelResult{Level: 1, ClassificationNotPossible: true, Reason: model.ReasonInvalidSearch}, nil).Once()

	r := New(search, cls)
	r.retry = fastRetry()

	res, err := r.Resolve(context.Background(), "acme inc", level1Categories(), nil)
	require.NoError(t, err)

	require.NotNil(t, res.ResolvedCategory)
	assert.True(t, res.ResolvedCategory.ClassificationNotPossible)
	assert.Equal(t, model.ReasonInvalidSearch, res.ResolvedCategory.Reason)
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(new(mockSearch), new(mockClassifier))
	_, err := r.Resolve(ctx, "acme inc", level1Categories(), nil)
	assert.Error(t, err)
}
