package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	HistoryFile     = "file"
	HistoryDynamoDB = "dynamodb"
)

// Config holds every setting read at startup.
type Config struct {
	HTTPPort string
	LogLevel string

	APIKey      string
	ParamPrefix string

	LLMProvider          string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiChatModel      string
	GeminiEmbeddingModel string
	Temperature          float64

	VectorDBPath       string
	CollectionName     string
	RetrieverK         int
	RetrieverSearch    string
	RetrieverFetchK    int
	RetrieverMMRLambda float64

	HistoryBackend string
	HistoryDir     string
	HistoryTable   string
	HistoryTTLDays int

	MaxQuestionLength   int
	AssistantPromptFile string
}

// Load reads envFile (when present) into the environment, then builds a
// Config from environment variables. A missing env file is not an error.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
		slog.Debug("no env file found, relying on environment variables", "path", envFile)
	}

	cfg := Config{
		HTTPPort: envOrDefault("HTTP_PORT", "8000"),
		LogLevel: strings.ToUpper(envOrDefault("LOG_LEVEL", "INFO")),

		APIKey:      os.Getenv("QA_API_KEY"),
		ParamPrefix: strings.TrimSpace(os.Getenv("PARAM_PREFIX")),

		LLMProvider:          strings.ToLower(envOrDefault("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIChatModel:      envOrDefault("OPENAI_CHAT_MODEL", "gpt-3.5-turbo-1106"),
		OpenAIEmbeddingModel: envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiChatModel:      envOrDefault("GEMINI_CHAT_MODEL", "gemini-1.5-flash-latest"),
		GeminiEmbeddingModel: envOrDefault("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		Temperature:          envFloatOrDefault("TEMPERATURE", 0.2),

		VectorDBPath:       envOrDefault("VECTOR_DB_PATH", "vectors.db"),
		CollectionName:     os.Getenv("COLLECTION_NAME"),
		RetrieverK:         envIntOrDefault("RETRIEVER_K", 2),
		RetrieverSearch:    strings.ToLower(envOrDefault("RETRIEVER_SEARCH_TYPE", "mmr")),
		RetrieverFetchK:    envIntOrDefault("RETRIEVER_FETCH_K", 20),
		RetrieverMMRLambda: envFloatOrDefault("RETRIEVER_MMR_LAMBDA", 0.5),

		HistoryBackend: strings.ToLower(envOrDefault("HISTORY_BACKEND", HistoryFile)),
		HistoryDir:     envOrDefault("HISTORY_DIR", "chat_histories"),
		HistoryTable:   os.Getenv("HISTORY_TABLE"),
		HistoryTTLDays: envIntOrDefault("HISTORY_TTL_DAYS", 0),

		MaxQuestionLength:   envIntOrDefault("MAX_QUESTION_LENGTH", 2000),
		AssistantPromptFile: os.Getenv("ASSISTANT_PROMPT_FILE"),
	}
	return cfg, nil
}

// Validate checks settings needed to serve questions.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CollectionName) == "" {
		errs = append(errs, errors.New("COLLECTION_NAME is required"))
	}
	if c.ParamPrefix == "" && strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("QA_API_KEY is required when PARAM_PREFIX is not set"))
	}
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.ParamPrefix == "" && c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai and PARAM_PREFIX is not set"))
		}
	case ProviderGemini:
		if c.ParamPrefix == "" && c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini and PARAM_PREFIX is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.LLMProvider))
	}
	switch c.HistoryBackend {
	case HistoryFile:
		if strings.TrimSpace(c.HistoryDir) == "" {
			errs = append(errs, errors.New("HISTORY_DIR must not be empty when HISTORY_BACKEND=file"))
		}
	case HistoryDynamoDB:
		if strings.TrimSpace(c.HistoryTable) == "" {
			errs = append(errs, errors.New("HISTORY_TABLE is required when HISTORY_BACKEND=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("HISTORY_BACKEND must be %q or %q, got %q", HistoryFile, HistoryDynamoDB, c.HistoryBackend))
	}
	if c.RetrieverSearch != "mmr" && c.RetrieverSearch != "similarity" {
		errs = append(errs, fmt.Errorf("RETRIEVER_SEARCH_TYPE must be \"mmr\" or \"similarity\", got %q", c.RetrieverSearch))
	}
	if c.RetrieverK <= 0 {
		errs = append(errs, errors.New("RETRIEVER_K must be positive"))
	}
	if c.RetrieverMMRLambda < 0 || c.RetrieverMMRLambda > 1 {
		errs = append(errs, errors.New("RETRIEVER_MMR_LAMBDA must be between 0 and 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to INFO.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ChatModel returns the chat model for the selected provider.
func (c Config) ChatModel() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiChatModel
	}
	return c.OpenAIChatModel
}

// EmbeddingModel returns the embedding model for the selected provider.
func (c Config) EmbeddingModel() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiEmbeddingModel
	}
	return c.OpenAIEmbeddingModel
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envFloatOrDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}
