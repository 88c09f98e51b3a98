package search

import (
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Assemble turns ranked hits into context passages: hits scoring below minScore are
// dropped, at most maxContexts are kept in rank order, and each is hard-cut to
// maxChars characters. maxContexts or maxChars <= 0 means no limit.
// An empty result means nothing relevant was retrieved.
func Assemble(hits []models.SearchHit, minScore float64, maxContexts, maxChars int) []string {
	contexts := make([]string, 0, min(len(hits), max(maxContexts, 0)))
	for _, h := range hits {
		if maxContexts > 0 && len(contexts) == maxContexts {
			break
		}
		if h.Score < minScore {
			continue
		}
		contexts = append(contexts, utils.TruncateRunes(h.Record.Text, maxChars))
	}
	return contexts
}
