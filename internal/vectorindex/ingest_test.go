package vectorindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitText_ParagraphsMergedUpToLimit(t *testing.T) {
	text := "alpha one\n\nbeta two\n\n\n\ngamma three"
	require.Equal(t, []string{"alpha one\n\nbeta two\n\ngamma three"}, SplitText(text, 100))
	require.Equal(t, []string{"alpha one", "beta two", "gamma three"}, SplitText(text, 12))
}

func TestSplitText_LongParagraphSplitsOnWords(t *testing.T) {
	chunks := SplitText("one two three four five", 9)
	require.Equal(t, []string{"one two", "three", "four five"}, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 9)
	}
}

func TestSplitText_OverlongWordIsCut(t *testing.T) {
	require.Equal(t, []string{"abcd", "efgh", "ij"}, SplitText("abcdefghij", 4))
}

func TestSplitText_Empty(t *testing.T) {
	require.Empty(t, SplitText(" \n\n \r\n", 10))
}

func TestIngester_IngestSource(t *testing.T) {
	idx := mustOpen(t)
	ctx := context.Background()
	c, err := idx.EnsureCollection(ctx, "docs")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "products.md")
	require.NoError(t, os.WriteFile(path, []byte("Product X is great.\n\nProduct Y is cheap."), 0o644))

	var embedded []string
	embed := func(_ context.Context, text string) ([]float32, error) {
		embedded = append(embedded, text)
		return []float32{float32(len(text)), 1}, nil
	}
	in, err := NewIngester(c, embed, 20)
	require.NoError(t, err)

	n, err := in.IngestSource(ctx, Source{Path: path, Metadata: map[string]any{"category": "products"}})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"Product X is great.", "Product Y is cheap."}, embedded)

	docs, err := c.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, path, docs[1].Metadata["source"])
	require.Equal(t, "products", docs[1].Metadata["category"])
	require.EqualValues(t, 1, docs[1].Metadata["chunk"])
}

func TestIngester_EmbedErrorStoresNothing(t *testing.T) {
	idx := mustOpen(t)
	ctx := context.Background()
	c, err := idx.EnsureCollection(ctx, "docs")
	require.NoError(t, err)

	in, err := NewIngester(c, func(context.Context, string) ([]float32, error) {
		return nil, errors.New("rate limited")
	}, 0)
	require.NoError(t, err)

	_, err = in.IngestText(ctx, "inline", "some text", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limited")

	count, err := c.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestIngester_MissingSource(t *testing.T) {
	idx := mustOpen(t)
	c, err := idx.EnsureCollection(context.Background(), "docs")
	require.NoError(t, err)
	in, err := NewIngester(c, func(context.Context, string) ([]float32, error) { return []float32{1}, nil }, 0)
	require.NoError(t, err)

	_, err = in.IngestSource(context.Background(), Source{Path: filepath.Join(t.TempDir(), "missing.md")})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "read source"))
}

func TestNewIngester_Validates(t *testing.T) {
	_, err := NewIngester(nil, func(context.Context, string) ([]float32, error) { return nil, nil }, 0)
	require.Error(t, err)
	_, err = NewIngester(&Collection{}, nil, 0)
	require.Error(t, err)
}
