package classifier

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/classify-cli/internal/resilience"
)

// batchResponse is the structured answer expected from the model for one
// classification call.
type batchResponse struct {
	Level            int              `json:"level"`
	ParentCategoryID string           `json:"parent_category_id"`
	Classifications  []classification `json:"classifications"`
}

type classification struct {
	VendorName                string  `json:"vendor_name"`
	CategoryID                string  `json:"category_id"`
	CategoryName              string  `json:"category_name"`
	Confidence                float64 `json:"confidence"`
	ClassificationNotPossible bool    `json:"classification_not_possible"`
	NotPossibleReason         string  `json:"classification_not_possible_reason"`
}

// responseSchema is the fail-closed contract for model output. A payload
// that is valid JSON but does not satisfy this schema is a hard batch
// failure and is never retried.
const responseSchema = `{
	"type": "object",
	"required": ["level", "classifications"],
	"properties": {
		"level": {"type": "integer", "minimum": 1, "maximum": 4},
		"parent_category_id": {"type": "string"},
		"classifications": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["vendor_name", "classification_not_possible"],
				"properties": {
					"vendor_name": {"type": "string", "minLength": 1},
					"category_id": {"type": "string"},
					"category_name": {"type": "string"},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1},
					"classification_not_possible": {"type": "boolean"},
					"classification_not_possible_reason": {"type": "string"}
				}
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("batch_response.json", responseSchema)

// errSchemaInvalid marks a payload that parsed as JSON but failed schema
// validation. Callers must not retry it.
var errSchemaInvalid = eris.New("classifier: response failed schema validation")

// parseBatchResponse extracts and validates the model's JSON answer.
// Unparseable JSON comes back as a transient error (the model may emit a
// clean payload on retry); schema violations come back as errSchemaInvalid.
func parseBatchResponse(content string) (*batchResponse, error) {
	text := cleanJSON(content)

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "classifier: malformed response JSON"), 0)
	}

	if err := compiledSchema.Validate(raw); err != nil {
		return nil, eris.Wrap(errSchemaInvalid, err.Error())
	}

	var resp batchResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, eris.Wrap(errSchemaInvalid, err.Error())
	}

	return &resp, nil
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or prose wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
