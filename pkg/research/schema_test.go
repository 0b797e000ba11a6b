package research

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaDecode(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		content string
		wantErr string
	}{
		{
			name:    "valid plan",
			schema:  PlanSchema,
			content: `{"steps": ["a"], "synthesis_questions": []}`,
		},
		{
			name:    "code fence is stripped",
			schema:  SummarySchema,
			content: "```json\n{\"summary_text\": \"s\", \"key_points\": [\"k\"]}\n```",
		},
		{
			name:    "invalid json",
			schema:  SummarySchema,
			content: `not json`,
			wantErr: "invalid json",
		},
		{
			name:    "missing property",
			schema:  SummarySchema,
			content: `{"key_points": []}`,
			wantErr: `missing properties: ["summary_text"]`,
		},
		{
			name:    "empty required string",
			schema:  SummarySchema,
			content: `{"summary_text": "  ", "key_points": []}`,
			wantErr: `pattern:`,
		},
		{
			name:    "wrong list type",
			schema:  SubQueriesSchema,
			content: `{"queries": "one"}`,
			wantErr: `want "array"`,
		},
		{
			name:    "non string item",
			schema:  SubQueriesSchema,
			content: `{"queries": ["a", 3]}`,
			wantErr: `want "string"`,
		},
		{
			name:    "null list",
			schema:  PlanSchema,
			content: `{"steps": ["a"], "synthesis_questions": null}`,
			wantErr: `want "array"`,
		},
		{
			name:    "unknown properties are tolerated",
			schema:  SubQueriesSchema,
			content: `{"queries": ["a"], "reasoning": "split by topic"}`,
		},
		{
			name:    "too few plan steps",
			schema:  PlanSchema,
			content: `{"steps": [], "synthesis_questions": []}`,
			wantErr: `minItems: array length 0 is less than 1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := tt.schema.Decode(tt.content, &out)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var sve *SchemaValidationError
			require.True(t, errors.As(err, &sve))
			assert.Equal(t, tt.schema.Name, sve.Schema)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSchemaJSONSchema(t *testing.T) {
	var doc struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal([]byte(PlanSchema.JSONSchema()), &doc))

	assert.Equal(t, "object", doc.Type)
	assert.ElementsMatch(t, []string{"steps", "synthesis_questions"}, doc.Required)
	assert.Equal(t, "array", doc.Properties["steps"]["type"])
	assert.EqualValues(t, 1, doc.Properties["steps"]["minItems"])
	assert.Equal(t, "Ordered steps to execute the research", doc.Properties["steps"]["description"])
	assert.NotContains(t, doc.Properties["synthesis_questions"], "minItems")
	assert.Contains(t, PlanSchema.ResponseFormat(), "Return the JSON object directly")
}
