package clients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/mikeboe/research-advisor/pkg/research"
)

// GenAIReasoner implements research.Reasoner with the native Gemini SDK.
// Structured completions use a response schema instead of prompt
// instructions.
type GenAIReasoner struct {
	Client     *genai.Client
	Model      string
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
}

// NewGenAIReasoner creates a Gemini API client for model.
func NewGenAIReasoner(ctx context.Context, apiKey, model string) (*GenAIReasoner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GenAIReasoner{
		Client:     client,
		Model:      model,
		MaxRetries: defaultMaxRetries,
		Backoff:    time.Second,
		Logger:     slog.Default(),
	}, nil
}

func (r *GenAIReasoner) Complete(ctx context.Context, prompt research.Prompt) (string, error) {
	return r.generate(ctx, prompt, &genai.GenerateContentConfig{})
}

func (r *GenAIReasoner) CompleteStructured(ctx context.Context, prompt research.Prompt, schema *research.Schema, out any) error {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   GenAISchema(schema),
	}
	return retry(ctx, r.MaxRetries, r.Backoff, r.Logger, func() error {
		rawJSON, err := r.generate(ctx, prompt, cfg)
		if err != nil {
			return err
		}
		if err := schema.Decode(rawJSON, out); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		return nil
	})
}

func (r *GenAIReasoner) generate(ctx context.Context, prompt research.Prompt, cfg *genai.GenerateContentConfig) (string, error) {
	if prompt.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}}
	}
	resp, err := r.Client.Models.GenerateContent(ctx, r.Model, []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt.User}}},
	}, cfg)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("llm returned no candidates")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// GenAISchema converts a response schema to its Gemini form.
func GenAISchema(s *research.Schema) *genai.Schema {
	out := genAIType(s.JSON)
	out.Description = s.Description
	return out
}

func genAIType(js *jsonschema.Schema) *genai.Schema {
	out := &genai.Schema{Description: js.Description}
	switch js.Type {
	case "object":
		out.Type = genai.TypeObject
		out.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for _, name := range js.PropertyOrder {
			if prop, ok := js.Properties[name]; ok {
				out.Properties[name] = genAIType(prop)
				out.PropertyOrdering = append(out.PropertyOrdering, name)
			}
		}
		out.Required = js.Required
	case "array":
		out.Type = genai.TypeArray
		if js.Items != nil {
			out.Items = genAIType(js.Items)
		}
		if js.MinItems != nil {
			minItems := int64(*js.MinItems)
			out.MinItems = &minItems
		}
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	return out
}
