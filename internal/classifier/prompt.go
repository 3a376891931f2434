package classifier

import (
	"fmt"
	"strings"

	"github.com/sells-group/classify-cli/internal/taxonomy"
)

const systemPrompt = `You are an industry classification engine. You assign vendor/company names to categories from a fixed hierarchical industry taxonomy.

Rules:
- Choose exactly one category per vendor, only from the provided list.
- If no category fits with reasonable confidence, set classification_not_possible to true and give a short reason.
- confidence is a number between 0.0 and 1.0.
- Respond with a single valid JSON object and nothing else, in this shape:
{"level": <int>, "parent_category_id": "<id or empty>", "classifications": [{"vendor_name": "<name exactly as given>", "category_id": "<id>", "category_name": "<name>", "confidence": <0.0-1.0>, "classification_not_possible": false, "classification_not_possible_reason": ""}]}`

// buildUserPrompt enumerates the candidate categories and the vendor batch
// for one classification call.
func buildUserPrompt(vendors []string, level int, parentID string, categories []*taxonomy.Node) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Classification level: %d\n", level)
	if parentID != "" {
		fmt.Fprintf(&b, "Parent category: %s\n", parentID)
	}

	b.WriteString("\nAvailable categories:\n")
	for _, c := range categories {
		if c.Description != "" {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", c.ID, c.Name, c.Description)
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Name)
		}
	}

	b.WriteString("\nVendors to classify:\n")
	for _, v := range vendors {
		fmt.Fprintf(&b, "- %s\n", v)
	}

	b.WriteString("\nClassify every vendor listed above. Include one entry per vendor in the classifications array.")
	return b.String()
}

const searchSystemPrompt = `You are an industry classification engine. Using the provided web search results, assign the vendor to one top-level industry category from the provided list.

Rules:
- Choose exactly one category, only from the provided list.
- If the search results are insufficient, set classification_not_possible to true and give a short reason.
- Respond with a single valid JSON object and nothing else, in this shape:
{"level": 1, "classifications": [{"vendor_name": "<name exactly as given>", "category_id": "<id>", "category_name": "<name>", "confidence": <0.0-1.0>, "classification_not_possible": false, "classification_not_possible_reason": ""}]}`

// buildSearchUserPrompt formats the retrieved snippets plus the level-1
// category list for a single-vendor fallback classification.
func buildSearchUserPrompt(vendor string, snippets []string, categories []*taxonomy.Node) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Vendor: %s\n\nWeb search results:\n", vendor)
	for i, s := range snippets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}

	b.WriteString("\nAvailable categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Name)
	}

	b.WriteString("\nClassify the vendor into exactly one category.")
	return b.String()
}
