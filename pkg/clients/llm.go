package clients

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-advisor/pkg/research"
)

const defaultMaxRetries = 3

// LLMReasoner implements research.Reasoner on top of any langchaingo model.
// Structured completions run in JSON mode with the schema embedded in the
// system prompt and are validated before being accepted.
type LLMReasoner struct {
	LLM        llms.Model
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
}

// NewLLMReasoner wraps llm with the default retry policy.
func NewLLMReasoner(llm llms.Model) *LLMReasoner {
	return &LLMReasoner{
		LLM:        llm,
		MaxRetries: defaultMaxRetries,
		Backoff:    time.Second,
		Logger:     slog.Default(),
	}
}

func (r *LLMReasoner) Complete(ctx context.Context, prompt research.Prompt) (string, error) {
	resp, err := r.LLM.GenerateContent(ctx, messages(prompt.System, prompt.User))
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (r *LLMReasoner) CompleteStructured(ctx context.Context, prompt research.Prompt, schema *research.Schema, out any) error {
	system := prompt.System + "\n\n# Response Format: \n\n" + schema.ResponseFormat()
	_, err := r.generateWithRetry(ctx, messages(system, prompt.User), func(content string) error {
		return schema.Decode(content, out)
	})
	return err
}

// generateWithRetry attempts to generate content and validates it using the provided function.
// It retries if the LLM fails or the validator returns an error.
func (r *LLMReasoner) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validator func(string) error) (string, error) {
	var content string
	err := retry(ctx, r.MaxRetries, r.Backoff, r.Logger, func() error {
		resp, err := r.LLM.GenerateContent(ctx, prompts, llms.WithJSONMode())
		if err != nil {
			return fmt.Errorf("llm generation failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("llm returned no choices")
		}
		content = resp.Choices[0].Content
		if err := validator(content); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		return nil
	})
	return content, err
}

func messages(system, user string) []llms.MessageContent {
	var out []llms.MessageContent
	if system != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(out, llms.TextParts(llms.ChatMessageTypeHuman, user))
}

// retry runs fn up to maxRetries times with linear backoff. It gives up early
// when ctx is done.
func retry(ctx context.Context, maxRetries int, backoff time.Duration, log *slog.Logger, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			log.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("operation cancelled after %d attempts: %w", i, lastErr)
			case <-time.After(backoff * time.Duration(i)):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", lastErr)
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}
