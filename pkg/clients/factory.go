package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-advisor/pkg/config"
	"github.com/mikeboe/research-advisor/pkg/research"
	"github.com/mikeboe/research-advisor/pkg/research/tools"
)

// NewReasoner builds the reasoning service selected by LLM_PROVIDER.
func NewReasoner(ctx context.Context, cfg *config.Config) (research.Reasoner, error) {
	if cfg.LLMProvider == config.ProviderGenAI {
		r, err := NewGenAIReasoner(ctx, cfg.GoogleApiKey, cfg.ReasoningModel)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	var (
		llm llms.Model
		err error
	)
	switch cfg.LLMProvider {
	case config.ProviderGoogle:
		llm, err = GoogleAi(ctx, cfg.GoogleApiKey, ModelType(cfg.ReasoningModel))
	case config.ProviderAzure:
		llm, err = AzureOpenAI(cfg.AzureApiKey, cfg.AzureEndpoint, cfg.AzureApiVersion, cfg.AzureDeploymentName)
	case config.ProviderAnthropic:
		llm, err = AnthropicAI(cfg.AnthropicApiKey, ModelType(cfg.AnthropicModel))
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return NewLLMReasoner(llm), nil
}

// NewSearcher builds the search service selected by SEARCH_PROVIDER.
func NewSearcher(cfg *config.Config) (research.Searcher, error) {
	switch cfg.SearchProvider {
	case config.SearchTavily:
		s, err := tools.NewTavilySearcher(cfg.TavilyApiKey, cfg.SearchMaxResults)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SearchArxiv:
		return tools.NewArxivSearcher(cfg.SearchMaxResults), nil
	default:
		return nil, fmt.Errorf("unknown SEARCH_PROVIDER: %s", cfg.SearchProvider)
	}
}
