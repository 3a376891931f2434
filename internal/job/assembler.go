package job

import (
	"github.com/sells-group/classify-cli/internal/model"
)

// Assemble maps classification outcomes back onto the original vendor list.
// It returns exactly one row per input, in input order, duplicates included.
// Rows share the outcome of their normalized form; an input with no outcome
// gets an empty row flagged with ReasonNoOutcome.
func Assemble(original []string, outcomes map[string]*model.Outcome) []model.OutputRow {
	rows := make([]model.OutputRow, 0, len(original))
	for _, vendor := range original {
		normalized := model.NormalizeVendor(vendor)
		outcome, ok := outcomes[normalized]
		if !ok || normalized == "" {
			rows = append(rows, model.OutputRow{
				Vendor: vendor,
				Reason: model.ReasonNoOutcome,
			})
			continue
		}
		rows = append(rows, model.OutputRow{
			Vendor: vendor,
			Levels: outcome.Levels,
			Search: outcome.Search,
		})
	}
	return rows
}
