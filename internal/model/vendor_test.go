package model

import "testing"

func TestNormalizeVendor(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Acme Inc", "acme inc"},
		{"  ACME   INC  ", "acme inc"},
		{"acme\tinc", "acme inc"},
		{"Acme Inc", "acme inc"}, // fullwidth
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := NormalizeVendor(c.in); got != c.want {
			t.Errorf("NormalizeVendor(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDeduplicateVendors(t *testing.T) {
	original := []string{"Acme Inc", "acme inc", "Unknown Corp", "", "ACME  INC"}
	unique := DeduplicateVendors(original)

	if len(unique) != 2 {
		t.Fatalf("expected 2 unique vendors, got %d: %v", len(unique), unique)
	}
	if unique[0] != "acme inc" || unique[1] != "unknown corp" {
		t.Errorf("unexpected keys (order should be first-seen): %v", unique)
	}
}

func TestOutcomeLastSuccess(t *testing.T) {
	o := &Outcome{
		NormalizedName: "acme inc",
		Levels: []LevelResult{
			{Level: 1, CategoryID: "51", CategoryName: "Information", Confidence: 0.9},
			{Level: 2, ClassificationNotPossible: true, Reason: ReasonNoSubcategories},
		},
	}
	last := o.LastSuccess()
	if last == nil || last.Level != 1 || last.CategoryID != "51" {
		t.Fatalf("expected level-1 success, got %+v", last)
	}
	if !o.Resolved() {
		t.Error("outcome with a level success should be resolved")
	}
}

func TestOutcomeResolvedViaSearch(t *testing.T) {
	o := &Outcome{
		NormalizedName: "unknown corp",
		Levels: []LevelResult{
			{Level: 1, ClassificationNotPossible: true, Reason: ReasonNoResponse},
		},
	}
	if o.Resolved() {
		t.Fatal("unresolved outcome reported as resolved")
	}
	o.Search = &SearchResolution{
		Sources:          []SearchSource{{Title: "t", URL: "u", Snippet: "s"}},
		ResolvedCategory: &LevelResult{Level: 1, CategoryID: "23", Confidence: 0.7},
	}
	if !o.Resolved() {
		t.Error("search-resolved outcome should be resolved")
	}
}

func TestUsageAccumulatorSnapshot(t *testing.T) {
	var acc UsageAccumulator
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			acc.Add(TokenUsage{PromptTokens: 100, CompletionTokens: 10, LLMCalls: 1})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	snap := acc.Snapshot()
	if snap.PromptTokens != 1000 || snap.CompletionTokens != 100 || snap.LLMCalls != 10 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestStageProgressMonotonic(t *testing.T) {
	order := []JobStage{
		StageIngestion, StageNormalization,
		StageClassifyL1, StageClassifyL2, StageClassifyL3, StageClassifyL4,
		StageSearch, StageResultGeneration,
	}
	prev := 0.0
	for _, st := range order {
		p, ok := StageProgress[st]
		if !ok {
			t.Fatalf("no progress checkpoint for stage %s", st)
		}
		if p <= prev {
			t.Errorf("progress not increasing at %s: %f <= %f", st, p, prev)
		}
		prev = p
	}
	if prev != 1.0 {
		t.Errorf("final stage should reach 1.0, got %f", prev)
	}
}
