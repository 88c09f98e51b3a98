package models

import "time"

// SearchHit is a single vector search result. Index is the insertion position of the entry.
type SearchHit struct {
	Score  float64     `json:"score"`
	Index  int         `json:"index"`
	Record ChunkRecord `json:"record"`
}

// AnswerMode records how an answer was produced.
type AnswerMode string

const (
	// AnswerGenerated means the generation model wrote the answer from the contexts.
	AnswerGenerated AnswerMode = "generated"
	// AnswerExtractive means the answer is the leading contexts joined verbatim.
	AnswerExtractive AnswerMode = "extractive"
	// AnswerFallback means no context passed the score threshold.
	AnswerFallback AnswerMode = "fallback"
)

// Answer is the response to a query.
type Answer struct {
	Query     string      `json:"query"`
	Text      string      `json:"answer"`
	Mode      AnswerMode  `json:"mode"`
	Contexts  []string    `json:"contexts"`
	Hits      []SearchHit `json:"hits"`
	QueryTime int64       `json:"query_time_ms"`
}

// Grounded reports whether the answer was derived from retrieved contexts.
func (a *Answer) Grounded() bool {
	return a.Mode != AnswerFallback
}

// SkippedDocument is a document left out of a build, with the reason.
type SkippedDocument struct {
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// BuildReport summarizes an index build.
type BuildReport struct {
	BuildID         string            `json:"build_id"`
	Documents       int               `json:"documents"`
	ChunksProduced  int               `json:"chunks_produced"`
	ChunksIndexed   int               `json:"chunks_indexed"`
	DuplicatesFound int               `json:"duplicates_removed"`
	Dimensions      int               `json:"dimensions"`
	Skipped         []SkippedDocument `json:"skipped,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	Duration        time.Duration     `json:"duration_ns"`
}
