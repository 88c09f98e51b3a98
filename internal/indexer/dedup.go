package indexer

import "github.com/hyperjump/kotae/internal/models"

// Dedupe keeps the first occurrence of each distinct chunk text, preserving order.
// It returns the survivors and how many records were dropped.
func Dedupe(records []models.ChunkRecord) ([]models.ChunkRecord, int) {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.ChunkRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Text]; ok {
			continue
		}
		seen[r.Text] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}
