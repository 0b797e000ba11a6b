package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLM providers.
const (
	ProviderGoogle    = "google"
	ProviderGenAI     = "genai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

// Search providers.
const (
	SearchTavily = "tavily"
	SearchArxiv  = "arxiv"
)

type Config struct {
	LLMProvider    string
	GoogleApiKey   string
	ReasoningModel string
	FastModel      string

	AzureApiKey         string
	AzureEndpoint       string
	AzureApiVersion     string
	AzureDeploymentName string

	AnthropicApiKey string
	AnthropicModel  string

	SearchProvider   string
	TavilyApiKey     string
	SearchMaxResults int
	MistralApiKey    string

	DatabaseURL  string
	SessionsDir  string
	FeedbackFile string
	Port         string

	StepTimeout          time.Duration
	RetrievalConcurrency int
	MaxSubQueries        int
	SequentialSynthesis  bool

	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	CollectionName string

	LogLevel slog.Level
}

// Load reads .env, when present, and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderGoogle)),
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),

		AzureApiKey:         getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureEndpoint:       getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureApiVersion:     getEnv("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		AzureDeploymentName: getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", ""),

		AnthropicApiKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		SearchProvider:   strings.ToLower(getEnv("SEARCH_PROVIDER", SearchTavily)),
		TavilyApiKey:     getEnv("TAVILY_API_KEY", ""),
		SearchMaxResults: getEnvAsInt("SEARCH_MAX_RESULTS", 5),
		MistralApiKey:    getEnv("MISTRAL_API_KEY", ""),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SessionsDir:  getEnv("SESSIONS_DIR", "research_sessions"),
		FeedbackFile: getEnv("FEEDBACK_FILE", "feedback_log.jsonl"),
		Port:         getEnv("PORT", "3000"),

		StepTimeout:          getEnvAsDuration("STEP_TIMEOUT", 60*time.Second),
		RetrievalConcurrency: getEnvAsInt("RETRIEVAL_CONCURRENCY", 4),
		MaxSubQueries:        getEnvAsInt("MAX_SUB_QUERIES", 5),
		SequentialSynthesis:  getEnvAsBool("SEQUENTIAL_SYNTHESIS", false),

		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "research_archive"),

		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") and plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		return defaultValue
	}
	return level
}
