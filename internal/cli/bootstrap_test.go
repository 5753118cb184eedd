package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"qa-assistant/internal/compose"
	"qa-assistant/internal/config"
	"qa-assistant/internal/domain"
	"qa-assistant/internal/repository"
	"qa-assistant/internal/vectorindex"
)

func TestLoadPersona(t *testing.T) {
	persona, err := loadPersona("")
	require.NoError(t, err)
	require.Equal(t, compose.DefaultPersona, persona)

	dir := t.TempDir()
	persona, err = loadPersona(writeFile(t, dir, "prompt.txt", "  You are the docs bot.\n"))
	require.NoError(t, err)
	require.Equal(t, "You are the docs bot.", persona)

	_, err = loadPersona(writeFile(t, dir, "empty.txt", "\n"))
	require.Error(t, err)

	_, err = loadPersona(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}

func TestSecret(t *testing.T) {
	s := &services{}
	v, err := s.secret(context.Background(), "from-env", paramAPIKey)
	require.NoError(t, err)
	require.Equal(t, "from-env", v)

	_, err = s.secret(context.Background(), "", paramAPIKey)
	require.ErrorContains(t, err, paramAPIKey)
}

func TestHistoryStore_File(t *testing.T) {
	s := &services{}
	store, err := s.historyStore(context.Background(), config.Config{
		HistoryBackend: config.HistoryFile,
		HistoryDir:     filepath.Join(t.TempDir(), "histories"),
	})
	require.NoError(t, err)
	require.IsType(t, &repository.FileStore{}, store)

	_, err = s.historyStore(context.Background(), config.Config{HistoryBackend: "mongo"})
	require.Error(t, err)
}

func TestNewHandler_MissingCollection(t *testing.T) {
	ctx := context.Background()
	idx, err := vectorindex.Open(ctx, filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	s := &services{index: idx}
	_, err = newHandler(ctx, config.Config{CollectionName: "absent"}, s)
	require.ErrorIs(t, err, vectorindex.ErrCollectionNotFound)
}

func TestNewHandler_Wires(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := vectorindex.Open(ctx, filepath.Join(dir, "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	_, err = idx.EnsureCollection(ctx, "docs")
	require.NoError(t, err)

	cfg := config.Config{
		APIKey:               "secret",
		LLMProvider:          config.ProviderOpenAI,
		OpenAIAPIKey:         "sk",
		OpenAIChatModel:      "gpt",
		OpenAIEmbeddingModel: "ada",
		CollectionName:       "docs",
		RetrieverK:           2,
		RetrieverSearch:      "mmr",
		RetrieverFetchK:      20,
		RetrieverMMRLambda:   0.5,
		HistoryBackend:       config.HistoryFile,
		HistoryDir:           filepath.Join(dir, "histories"),
	}
	s := &services{index: idx}
	p, err := s.newProvider(ctx, cfg)
	require.NoError(t, err)
	s.provider = p

	h, err := newHandler(ctx, cfg, s)
	require.NoError(t, err)
	require.NotNil(t, h)
}

type fakeProvider struct {
	dim    int
	embeds int
}

func (f *fakeProvider) Chat(context.Context, string, []domain.ChatMessage) (string, error) {
	return "ok", nil
}

func (f *fakeProvider) Embed(context.Context, string, string) ([]float32, error) {
	f.embeds++
	return make([]float32, f.dim), nil
}

func TestCheckDimension(t *testing.T) {
	ctx := context.Background()
	idx, err := vectorindex.Open(ctx, filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	c, err := idx.EnsureCollection(ctx, "docs")
	require.NoError(t, err)

	empty := &fakeProvider{dim: 3}
	require.NoError(t, checkDimension(ctx, c, empty, "m"))
	require.Zero(t, empty.embeds, "empty collection needs no sample")

	require.NoError(t, c.Add(ctx, []vectorindex.Document{{Content: "a", Embedding: []float32{1, 0}}}))
	require.NoError(t, checkDimension(ctx, c, &fakeProvider{dim: 2}, "m"))

	err = checkDimension(ctx, c, &fakeProvider{dim: 3}, "m")
	require.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestNewHandler_AbortsOnDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := vectorindex.Open(ctx, filepath.Join(dir, "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	c, err := idx.EnsureCollection(ctx, "docs")
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []vectorindex.Document{{Content: "a", Embedding: []float32{1, 0}}}))

	s := &services{index: idx, provider: &fakeProvider{dim: 1536}}
	_, err = newHandler(ctx, config.Config{CollectionName: "docs", OpenAIEmbeddingModel: "ada"}, s)
	require.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}
