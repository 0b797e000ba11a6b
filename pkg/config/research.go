package config

import (
	"fmt"

	"github.com/mikeboe/research-advisor/pkg/research"
)

// Research returns the engine settings.
func (c *Config) Research() research.Config {
	cfg := research.DefaultConfig()
	if c.StepTimeout > 0 {
		cfg.StepTimeout = c.StepTimeout
	}
	if c.RetrievalConcurrency > 0 {
		cfg.RetrievalConcurrency = c.RetrievalConcurrency
	}
	if c.MaxSubQueries > 0 {
		cfg.MaxSubQueries = c.MaxSubQueries
	}
	cfg.SequentialSynthesis = c.SequentialSynthesis
	return cfg
}

// Validate checks that the selected providers have their credentials.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGoogle, ProviderGenAI:
		if c.GoogleApiKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for provider %s", c.LLMProvider)
		}
	case ProviderAzure:
		if c.AzureApiKey == "" || c.AzureEndpoint == "" || c.AzureDeploymentName == "" {
			return fmt.Errorf("AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT_NAME are required for provider azure")
		}
	case ProviderAnthropic:
		if c.AnthropicApiKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider anthropic")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER: %s", c.LLMProvider)
	}

	switch c.SearchProvider {
	case SearchTavily:
		if c.TavilyApiKey == "" {
			return fmt.Errorf("TAVILY_API_KEY is required for search provider tavily")
		}
	case SearchArxiv:
	default:
		return fmt.Errorf("unknown SEARCH_PROVIDER: %s", c.SearchProvider)
	}
	return nil
}
