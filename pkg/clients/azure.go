package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

// AzureOpenAI creates a langchaingo model against an Azure OpenAI deployment.
func AzureOpenAI(apiKey, endpoint, apiVersion, deployment string) (*openai.LLM, error) {
	if apiKey == "" || endpoint == "" || deployment == "" {
		return nil, fmt.Errorf("azure openai key, endpoint and deployment must be set")
	}

	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(endpoint),
		openai.WithToken(apiKey),
		openai.WithAPIVersion(apiVersion),
		openai.WithModel(deployment),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure openai client: %w", err)
	}
	return llm, nil
}
