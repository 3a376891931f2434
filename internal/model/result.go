package model

// Reasons recorded on LevelResults that could not be produced normally.
// These strings are part of the output contract; don't reword casually.
const (
	ReasonNoResponse      = "no response for vendor"
	ReasonInvalidResponse = "invalid model response"
	ReasonNoSubcategories = "no subcategories defined"
	ReasonInvalidSearch   = "invalid search classification response"
	ReasonNoOutcome       = "internal: no outcome found"
)

// LevelResult is the classification outcome for one vendor at one taxonomy
// level. Immutable once written; later levels never overwrite earlier ones.
type LevelResult struct {
	Level                     int     `json:"level"`
	CategoryID                string  `json:"category_id,omitempty"`
	CategoryName              string  `json:"category_name,omitempty"`
	Confidence                float64 `json:"confidence"`
	ClassificationNotPossible bool    `json:"classification_not_possible"`
	Reason                    string  `json:"reason,omitempty"`
}

// Succeeded reports whether the vendor received a category at this level.
func (r LevelResult) Succeeded() bool {
	return !r.ClassificationNotPossible && r.CategoryID != ""
}

// SearchSource is one retrieved web-search citation.
type SearchSource struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResolution records the search-fallback attempt for a vendor that
// ended the hierarchical pass with no successful level. Created at most once
// per vendor. ResolvedCategory, when set, is a level-1-equivalent result; it
// is never appended to Outcome.Levels.
type SearchResolution struct {
	Sources          []SearchSource `json:"sources,omitempty"`
	ResolvedCategory *LevelResult   `json:"resolved_category,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Outcome is the full classification record for one normalized vendor:
// an ordered slice of up to four LevelResults plus an optional fallback
// resolution. Levels holds a result for level N only if level N-1 succeeded
// (level 1 excepted).
type Outcome struct {
	NormalizedName string            `json:"normalized_name"`
	Levels         []LevelResult     `json:"levels"`
	Search         *SearchResolution `json:"search,omitempty"`
}

// LastSuccess returns the deepest successful LevelResult, or nil.
func (o *Outcome) LastSuccess() *LevelResult {
	for i := len(o.Levels) - 1; i >= 0; i-- {
		if o.Levels[i].Succeeded() {
			return &o.Levels[i]
		}
	}
	return nil
}

// Resolved reports whether the vendor got any category at all, through the
// hierarchy or through search fallback.
func (o *Outcome) Resolved() bool {
	if o.LastSuccess() != nil {
		return true
	}
	return o.Search != nil && o.Search.ResolvedCategory != nil && o.Search.ResolvedCategory.Succeeded()
}

// OutputRow is one row of the final artifact, mapped back onto the original
// (non-deduplicated, non-normalized) input list.
type OutputRow struct {
	Vendor string            `json:"vendor"`
	Levels []LevelResult     `json:"levels,omitempty"`
	Search *SearchResolution `json:"search,omitempty"`
	Reason string            `json:"reason,omitempty"`
}
