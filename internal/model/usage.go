package model

import "sync/atomic"

// TokenUsage is a snapshot of token consumption.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	LLMCalls         int64 `json:"llm_calls"`
	SearchQueries    int64 `json:"search_queries"`
}

// Add accumulates another snapshot into u.
func (u *TokenUsage) Add(d TokenUsage) {
	u.PromptTokens += d.PromptTokens
	u.CompletionTokens += d.CompletionTokens
	u.LLMCalls += d.LLMCalls
	u.SearchQueries += d.SearchQueries
}

// UsageAccumulator is the shared, concurrency-safe usage counter mutated by
// batch calls running in parallel. It is never read for control flow; the
// final Snapshot after all batches join is the reported value.
type UsageAccumulator struct {
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	llmCalls         atomic.Int64
	searchQueries    atomic.Int64
}

// Add atomically accumulates a per-call usage delta.
func (a *UsageAccumulator) Add(d TokenUsage) {
	a.promptTokens.Add(d.PromptTokens)
	a.completionTokens.Add(d.CompletionTokens)
	a.llmCalls.Add(d.LLMCalls)
	a.searchQueries.Add(d.SearchQueries)
}

// Snapshot returns a consistent copy of the counters.
func (a *UsageAccumulator) Snapshot() TokenUsage {
	return TokenUsage{
		PromptTokens:     a.promptTokens.Load(),
		CompletionTokens: a.completionTokens.Load(),
		LLMCalls:         a.llmCalls.Load(),
		SearchQueries:    a.searchQueries.Load(),
	}
}
