package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"qa-assistant/handler"
	"qa-assistant/internal/compose"
	"qa-assistant/internal/config"
	"qa-assistant/internal/domain"
	"qa-assistant/internal/integrations/gemini"
	"qa-assistant/internal/integrations/openai"
	"qa-assistant/internal/integrations/paramstore"
	"qa-assistant/internal/repository"
	"qa-assistant/internal/retrieval"
	"qa-assistant/internal/usecase"
	"qa-assistant/internal/vectorindex"
)

// Parameter Store keys under PARAM_PREFIX.
const (
	paramAPIKey      = "api-key"
	paramOpenAIToken = "open-ai-token"
	paramGeminiToken = "gemini-token"
)

// provider is a chat and embedding backend.
type provider interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// services holds everything built from configuration. close releases it.
type services struct {
	aws      *aws.Config
	params   *paramstore.Client
	provider provider
	index    *vectorindex.Index
	closers  []func() error
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
}

func (s *services) awsConfig(ctx context.Context) (aws.Config, error) {
	if s.aws != nil {
		return *s.aws, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	s.aws = &awsCfg
	return awsCfg, nil
}

// secret returns the env value when set, else the Parameter Store token.
func (s *services) secret(ctx context.Context, envValue, paramKey string) (string, error) {
	if strings.TrimSpace(envValue) != "" {
		return envValue, nil
	}
	if s.params == nil {
		return "", fmt.Errorf("secret %q is not configured", paramKey)
	}
	return s.params.Token(ctx, paramKey)
}

func newServices(ctx context.Context, cfg config.Config) (*services, error) {
	s := &services{}
	if cfg.ParamPrefix != "" {
		awsCfg, err := s.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
		if err != nil {
			return nil, fmt.Errorf("create parameter store client: %w", err)
		}
		s.params = ps
	}

	p, err := s.newProvider(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.provider = p

	idx, err := vectorindex.Open(ctx, cfg.VectorDBPath)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	s.index = idx
	s.closers = append(s.closers, idx.Close)
	return s, nil
}

func (s *services) newProvider(ctx context.Context, cfg config.Config) (provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		key, err := s.secret(ctx, cfg.GeminiAPIKey, paramGeminiToken)
		if err != nil {
			return nil, fmt.Errorf("resolve gemini key: %w", err)
		}
		gc, err := gemini.NewClient(ctx, key, gemini.WithTemperature(float32(cfg.Temperature)))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, gc.Close)
		return gc, nil
	case config.ProviderOpenAI:
		keyFunc := openai.StaticKey(cfg.OpenAIAPIKey)
		if cfg.OpenAIAPIKey == "" {
			keyFunc = func(ctx context.Context) (string, error) {
				return s.secret(ctx, "", paramOpenAIToken)
			}
		}
		return openai.NewClient(keyFunc,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithTemperature(cfg.Temperature),
		)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func (s *services) historyStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.HistoryBackend {
	case config.HistoryDynamoDB:
		awsCfg, err := s.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		var opts []repository.DynamoOption
		if cfg.HistoryTTLDays > 0 {
			opts = append(opts, repository.WithTTL(time.Duration(cfg.HistoryTTLDays)*24*time.Hour))
		}
		return repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.HistoryTable, opts...)
	case config.HistoryFile:
		return repository.NewFileStore(cfg.HistoryDir)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

func loadPersona(path string) (string, error) {
	if path == "" {
		return compose.DefaultPersona, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read assistant prompt: %w", err)
	}
	persona := strings.TrimSpace(string(raw))
	if persona == "" {
		return "", errors.New("assistant prompt file is empty")
	}
	return persona, nil
}

// newHandler wires the full ask pipeline. The collection must already exist.
func newHandler(ctx context.Context, cfg config.Config, s *services) (*handler.Handler, error) {
	collection, err := s.index.Collection(ctx, cfg.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", cfg.CollectionName, err)
	}
	if err := checkDimension(ctx, collection, s.provider, cfg.EmbeddingModel()); err != nil {
		return nil, err
	}

	mode, err := retrieval.ParseSearchMode(cfg.RetrieverSearch)
	if err != nil {
		return nil, err
	}
	retriever, err := retrieval.New(s.provider, collection, cfg.EmbeddingModel(),
		retrieval.WithK(cfg.RetrieverK),
		retrieval.WithSearchMode(mode),
		retrieval.WithMMR(cfg.RetrieverFetchK, float32(cfg.RetrieverMMRLambda)),
	)
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}

	persona, err := loadPersona(cfg.AssistantPromptFile)
	if err != nil {
		return nil, err
	}
	composer, err := compose.New(s.provider, cfg.ChatModel(), persona)
	if err != nil {
		return nil, fmt.Errorf("create composer: %w", err)
	}

	history, err := s.historyStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create history store: %w", err)
	}

	askService, err := usecase.NewAskService(history, retriever, composer, cfg.MaxQuestionLength)
	if err != nil {
		return nil, fmt.Errorf("create ask service: %w", err)
	}

	apiKey, err := s.secret(ctx, cfg.APIKey, paramAPIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve API key: %w", err)
	}
	return handler.NewHandler(askService, apiKey)
}

// checkDimension embeds a sample text and compares its length with the stored
// embeddings, so a model that does not match the ingested corpus fails startup.
func checkDimension(ctx context.Context, c *vectorindex.Collection, p provider, model string) error {
	stored, ok, err := c.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("read collection dimension: %w", err)
	}
	if !ok {
		slog.Warn("collection is empty", "collection", c.Name())
		return nil
	}
	sample, err := p.Embed(ctx, model, "dimension check")
	if err != nil {
		return fmt.Errorf("embed sample with %q: %w", model, err)
	}
	if len(sample) != stored {
		return fmt.Errorf("%w: model %q returns %d dimensions, collection %q stores %d",
			vectorindex.ErrDimensionMismatch, model, len(sample), c.Name(), stored)
	}
	return nil
}

// buildHandler validates configuration and returns a ready handler.
func buildHandler(ctx context.Context, cfg config.Config) (*handler.Handler, *services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	s, err := newServices(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	h, err := newHandler(ctx, cfg, s)
	if err != nil {
		s.close()
		return nil, nil, err
	}
	return h, s, nil
}
