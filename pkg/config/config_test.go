package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "STEP_TIMEOUT", "RETRIEVAL_CONCURRENCY", "SESSIONS_DIR", "LOG_LEVEL", "SEARCH_PROVIDER"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ProviderGoogle, cfg.LLMProvider)
	assert.Equal(t, SearchTavily, cfg.SearchProvider)
	assert.Equal(t, 60*time.Second, cfg.StepTimeout)
	assert.Equal(t, 4, cfg.RetrievalConcurrency)
	assert.Equal(t, "research_sessions", cfg.SessionsDir)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Azure")
	t.Setenv("STEP_TIMEOUT", "90")
	t.Setenv("MAX_SUB_QUERIES", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SEQUENTIAL_SYNTHESIS", "true")

	cfg := Load()

	assert.Equal(t, ProviderAzure, cfg.LLMProvider)
	assert.Equal(t, 90*time.Second, cfg.StepTimeout)
	assert.Equal(t, 5, cfg.MaxSubQueries)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.SequentialSynthesis)
	assert.True(t, cfg.Research().SequentialSynthesis)
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"30s", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"15", 15 * time.Second},
		{"soon", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"google", Config{LLMProvider: ProviderGoogle, GoogleApiKey: "k", SearchProvider: SearchArxiv}, false},
		{"google without key", Config{LLMProvider: ProviderGoogle, SearchProvider: SearchArxiv}, true},
		{"azure incomplete", Config{LLMProvider: ProviderAzure, AzureApiKey: "k", SearchProvider: SearchArxiv}, true},
		{"anthropic", Config{LLMProvider: ProviderAnthropic, AnthropicApiKey: "k", SearchProvider: SearchArxiv}, false},
		{"tavily without key", Config{LLMProvider: ProviderGenAI, GoogleApiKey: "k", SearchProvider: SearchTavily}, true},
		{"unknown provider", Config{LLMProvider: "llama", SearchProvider: SearchArxiv}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestResearchConfig(t *testing.T) {
	cfg := Config{StepTimeout: 5 * time.Second, RetrievalConcurrency: 2}
	rc := cfg.Research()

	assert.Equal(t, 5*time.Second, rc.StepTimeout)
	assert.Equal(t, 2, rc.RetrievalConcurrency)
	assert.Equal(t, 5, rc.MaxSubQueries)
	assert.Equal(t, 16, rc.MaxTransitions)
	assert.False(t, rc.SequentialSynthesis)
}
