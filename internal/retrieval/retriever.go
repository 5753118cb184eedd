package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qa-assistant/internal/domain"
	"qa-assistant/internal/vectorindex"
)

const (
	DefaultK         = 2
	DefaultFetchK    = 20
	DefaultMMRLambda = 0.5
)

// SearchMode selects how candidates are ranked.
type SearchMode string

const (
	ModeSimilarity SearchMode = "similarity"
	ModeMMR        SearchMode = "mmr"
)

// ParseSearchMode accepts "similarity" or "mmr", case-insensitively.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimilarity:
		return ModeSimilarity, nil
	case ModeMMR:
		return ModeMMR, nil
	default:
		return "", fmt.Errorf("retrieval: unknown search mode %q", s)
	}
}

type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Searcher is the vector index surface the retriever needs.
// *vectorindex.Collection satisfies it.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]vectorindex.Scored, error)
	MaxMarginalRelevanceSearch(ctx context.Context, query []float32, k, fetchK int, lambda float32) ([]vectorindex.Scored, error)
}

// Retriever embeds a query and returns the most relevant stored documents.
type Retriever struct {
	embedder       Embedder
	searcher       Searcher
	embeddingModel string
	k              int
	mode           SearchMode
	fetchK         int
	lambda         float32
}

type Option func(*Retriever)

func WithK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

func WithSearchMode(mode SearchMode) Option {
	return func(r *Retriever) {
		r.mode = mode
	}
}

// WithMMR sets the candidate pool size and relevance/diversity balance for ModeMMR.
func WithMMR(fetchK int, lambda float32) Option {
	return func(r *Retriever) {
		if fetchK > 0 {
			r.fetchK = fetchK
		}
		if lambda >= 0 && lambda <= 1 {
			r.lambda = lambda
		}
	}
}

// New creates a Retriever. The default mode is ModeMMR with k=2.
func New(e Embedder, s Searcher, embeddingModel string, opts ...Option) (*Retriever, error) {
	if e == nil {
		return nil, errors.New("retrieval: embedder must not be nil")
	}
	if s == nil {
		return nil, errors.New("retrieval: searcher must not be nil")
	}
	if strings.TrimSpace(embeddingModel) == "" {
		return nil, errors.New("retrieval: embedding model must not be empty")
	}
	r := &Retriever{
		embedder:       e,
		searcher:       s,
		embeddingModel: embeddingModel,
		k:              DefaultK,
		mode:           ModeMMR,
		fetchK:         DefaultFetchK,
		lambda:         DefaultMMRLambda,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mode != ModeSimilarity && r.mode != ModeMMR {
		return nil, fmt.Errorf("retrieval: unknown search mode %q", r.mode)
	}
	return r, nil
}

// Retrieve returns up to k documents for query, most relevant first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	vec, err := r.embedder.Embed(ctx, r.embeddingModel, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	var scored []vectorindex.Scored
	switch r.mode {
	case ModeSimilarity:
		scored, err = r.searcher.SimilaritySearch(ctx, vec, r.k)
	default:
		scored, err = r.searcher.MaxMarginalRelevanceSearch(ctx, vec, r.k, r.fetchK, r.lambda)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieval: %s search: %w", r.mode, err)
	}

	docs := make([]domain.Document, 0, len(scored))
	for _, s := range scored {
		docs = append(docs, domain.Document{Text: s.Content, Metadata: s.Metadata})
	}
	return docs, nil
}
