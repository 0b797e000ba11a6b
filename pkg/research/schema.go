package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema describes the JSON object a structured completion must return. The
// JSON schema is inferred from the Go response type, rendered into prompts
// for providers without native structured output and converted to native
// response schemas by provider clients.
type Schema struct {
	Name        string
	Description string
	JSON        *jsonschema.Schema

	resolved *jsonschema.Resolved
}

// newSchema infers the schema of T. Every field without omitempty is
// required, lists may not be null and unknown properties are tolerated.
// tune adds the constraints struct tags cannot express.
func newSchema[T any](name, description string, tune func(props map[string]*jsonschema.Schema)) *Schema {
	js, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("research: schema %s: %v", name, err))
	}
	js.Description = description
	js.AdditionalProperties = nil
	for _, prop := range js.Properties {
		if len(prop.Types) > 0 {
			prop.Type = nonNullType(prop.Types)
			prop.Types = nil
		}
	}
	if tune != nil {
		tune(js.Properties)
	}

	resolved, err := js.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("research: resolve schema %s: %v", name, err))
	}
	return &Schema{Name: name, Description: description, JSON: js, resolved: resolved}
}

func nonNullType(types []string) string {
	for _, t := range types {
		if t != "null" {
			return t
		}
	}
	return "null"
}

// JSONSchema renders the schema as a JSON schema document.
func (s *Schema) JSONSchema() string {
	data, _ := json.MarshalIndent(s.JSON, "", "  ")
	return string(data)
}

// ResponseFormat is the instruction appended to system prompts for providers
// without native structured output.
func (s *Schema) ResponseFormat() string {
	return "Return the JSON object directly without any formatting or additional text. " +
		"The JSON object should have the following structure as defined in the schema. " +
		"Make sure to answer in valid json and include all necessary properties:" + s.JSONSchema()
}

// Decode validates content against the schema and unmarshals it into out.
func (s *Schema) Decode(content string, out any) error {
	content = stripCodeFence(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return &SchemaValidationError{
			Schema:   s.Name,
			Problems: []string{fmt.Sprintf("invalid json: %v", err)},
			Raw:      content,
		}
	}
	if err := s.resolved.Validate(raw); err != nil {
		return &SchemaValidationError{Schema: s.Name, Problems: []string{err.Error()}, Raw: content}
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return &SchemaValidationError{
			Schema:   s.Name,
			Problems: []string{fmt.Sprintf("decode: %v", err)},
			Raw:      content,
		}
	}
	return nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

var (
	// SubQueriesSchema is the response of the Deconstruct step.
	SubQueriesSchema = newSchema[DeconstructedQueries]("DeconstructedQueries",
		"A list of deconstructed, more specific queries.", nil)

	// PlanSchema is the response of the Plan step.
	PlanSchema = newSchema[ResearchPlan]("ResearchPlan",
		"A plan to synthesize the retrieved information into an answer.",
		func(props map[string]*jsonschema.Schema) {
			props["steps"].MinItems = jsonschema.Ptr(1)
		})

	// SummarySchema is the response of the Summarize step.
	SummarySchema = newSchema[SummarizedOutput]("SummarizedOutput",
		"A concise summary of the provided information.",
		func(props map[string]*jsonschema.Schema) {
			props["summary_text"].Pattern = `\S`
		})
)
