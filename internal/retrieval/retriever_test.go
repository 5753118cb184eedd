package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"qa-assistant/internal/domain"
	"qa-assistant/internal/vectorindex"
)

type fakeEmbedder struct {
	vec       []float32
	err       error
	lastModel string
	lastText  string
}

func (f *fakeEmbedder) Embed(_ context.Context, model, text string) ([]float32, error) {
	f.lastModel = model
	f.lastText = text
	return f.vec, f.err
}

type fakeSearcher struct {
	out        []vectorindex.Scored
	err        error
	mode       string
	lastK      int
	lastFetchK int
	lastLambda float32
}

func (f *fakeSearcher) SimilaritySearch(_ context.Context, _ []float32, k int) ([]vectorindex.Scored, error) {
	f.mode = "similarity"
	f.lastK = k
	return f.out, f.err
}

func (f *fakeSearcher) MaxMarginalRelevanceSearch(_ context.Context, _ []float32, k, fetchK int, lambda float32) ([]vectorindex.Scored, error) {
	f.mode = "mmr"
	f.lastK = k
	f.lastFetchK = fetchK
	f.lastLambda = lambda
	return f.out, f.err
}

func scored(content string) vectorindex.Scored {
	return vectorindex.Scored{Document: vectorindex.Document{Content: content, Metadata: map[string]any{"source": content + ".md"}}}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, &fakeSearcher{}, "m")
	require.Error(t, err)
	_, err = New(&fakeEmbedder{}, nil, "m")
	require.Error(t, err)
	_, err = New(&fakeEmbedder{}, &fakeSearcher{}, " ")
	require.Error(t, err)
	_, err = New(&fakeEmbedder{}, &fakeSearcher{}, "m", WithSearchMode("fuzzy"))
	require.Error(t, err)
}

func TestRetrieve_DefaultsToMMR(t *testing.T) {
	e := &fakeEmbedder{vec: []float32{1}}
	s := &fakeSearcher{out: []vectorindex.Scored{scored("doc A about product X")}}
	r, err := New(e, s, "embed-model")
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "What products?")
	require.NoError(t, err)
	require.Equal(t, []domain.Document{{Text: "doc A about product X", Metadata: map[string]any{"source": "doc A about product X.md"}}}, docs)
	require.Equal(t, "embed-model", e.lastModel)
	require.Equal(t, "What products?", e.lastText)
	require.Equal(t, "mmr", s.mode)
	require.Equal(t, DefaultK, s.lastK)
	require.Equal(t, DefaultFetchK, s.lastFetchK)
	require.InDelta(t, DefaultMMRLambda, s.lastLambda, 1e-6)
}

func TestRetrieve_SimilarityMode(t *testing.T) {
	s := &fakeSearcher{out: []vectorindex.Scored{scored("a"), scored("b"), scored("c"), scored("d")}}
	r, err := New(&fakeEmbedder{vec: []float32{1}}, s, "m", WithSearchMode(ModeSimilarity), WithK(4))
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, docs, 4)
	require.Equal(t, "similarity", s.mode)
	require.Equal(t, 4, s.lastK)
	require.Equal(t, "a", docs[0].Text)
}

func TestRetrieve_MMROptions(t *testing.T) {
	s := &fakeSearcher{}
	r, err := New(&fakeEmbedder{vec: []float32{1}}, s, "m", WithMMR(10, 0.25), WithK(3))
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, 3, s.lastK)
	require.Equal(t, 10, s.lastFetchK)
	require.InDelta(t, 0.25, s.lastLambda, 1e-6)
}

func TestRetrieve_Errors(t *testing.T) {
	r, err := New(&fakeEmbedder{err: errors.New("embed down")}, &fakeSearcher{}, "m")
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), "q")
	require.ErrorContains(t, err, "embed query")

	r, err = New(&fakeEmbedder{vec: []float32{1}}, &fakeSearcher{err: errors.New("db locked")}, "m")
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), "q")
	require.ErrorContains(t, err, "mmr search")
	require.ErrorContains(t, err, "db locked")
}

func TestParseSearchMode(t *testing.T) {
	m, err := ParseSearchMode(" MMR ")
	require.NoError(t, err)
	require.Equal(t, ModeMMR, m)

	m, err = ParseSearchMode("similarity")
	require.NoError(t, err)
	require.Equal(t, ModeSimilarity, m)

	_, err = ParseSearchMode("knn")
	require.Error(t, err)
}
