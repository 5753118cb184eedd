package vectorindex

import (
	"errors"
	"math"
	"sort"
)

// Scored is a stored document with its similarity to a query.
type Scored struct {
	Document
	Score float32
}

// CosineSimilarity returns the cosine of the angle between a and b. Zero
// vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.New("vectorindex: vectors cannot be empty")
	}
	if len(a) != len(b) {
		return 0, errors.New("vectorindex: vectors must have the same dimension")
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB))), nil
}

// rankBySimilarity scores every document against query and returns them in
// descending score order. Documents whose embedding dimension differs are skipped.
func rankBySimilarity(query []float32, docs []Document) []Scored {
	scored := make([]Scored, 0, len(docs))
	for _, d := range docs {
		s, err := CosineSimilarity(query, d.Embedding)
		if err != nil {
			continue
		}
		scored = append(scored, Scored{Document: d, Score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// MaximalMarginalRelevance picks k candidates that balance relevance to the
// query against redundancy with already-picked ones. lambda=1 is pure
// relevance, lambda=0 pure diversity. Candidates must carry query scores.
func MaximalMarginalRelevance(candidates []Scored, k int, lambda float32) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	picked := make([]Scored, 0, k)
	used := make([]bool, len(candidates))
	for len(picked) < k {
		best := -1
		var bestScore float32
		for i, c := range candidates {
			if used[i] {
				continue
			}
			var redundancy float32
			if len(picked) > 0 {
				redundancy = -math.MaxFloat32
			}
			for _, p := range picked {
				s, err := CosineSimilarity(c.Embedding, p.Embedding)
				if err == nil && s > redundancy {
					redundancy = s
				}
			}
			if redundancy == -math.MaxFloat32 {
				redundancy = 0
			}
			mmr := lambda*c.Score - (1-lambda)*redundancy
			if best == -1 || mmr > bestScore {
				best, bestScore = i, mmr
			}
		}
		used[best] = true
		picked = append(picked, candidates[best])
	}
	return picked
}
