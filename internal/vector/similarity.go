package vector

import (
	"cmp"
	"slices"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	return utils.L2Norm(x)
}

type scored struct {
	index int
	score float64
}

// rank orders by descending score, then ascending insertion index.
func rank(scores []scored) {
	slices.SortFunc(scores, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
}

// collectHits ranks scores and returns the first k as hits carrying their records.
func collectHits(scores []scored, k int, records []models.ChunkRecord) []models.SearchHit {
	rank(scores)
	if k > len(scores) {
		k = len(scores)
	}
	hits := make([]models.SearchHit, k)
	for i := 0; i < k; i++ {
		s := scores[i]
		hits[i] = models.SearchHit{Score: s.score, Index: s.index, Record: records[s.index]}
	}
	return hits
}
