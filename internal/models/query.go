package models

import "strings"

// QueryRequest is a question with optional per-request retrieval overrides.
// Zero values mean "use the configured default".
type QueryRequest struct {
	Query         string   `json:"query"`
	TopK          int      `json:"top_k,omitempty"`
	MinScore      *float64 `json:"min_score,omitempty"`
	MaxContexts   int      `json:"max_contexts,omitempty"`
	UseGeneration *bool    `json:"use_generation,omitempty"`
}

// Validate ensures the query is usable. Negative overrides are rejected.
func (q *QueryRequest) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return InvalidConfigf("query cannot be empty")
	}
	if q.TopK < 0 {
		return InvalidConfigf("top_k must not be negative, got %d", q.TopK)
	}
	if q.TopK > 100 {
		q.TopK = 100
	}
	if q.MaxContexts < 0 {
		return InvalidConfigf("max_contexts must not be negative, got %d", q.MaxContexts)
	}
	return nil
}
