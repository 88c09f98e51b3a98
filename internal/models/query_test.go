package models

import (
	"errors"
	"testing"
)

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *QueryRequest
		wantErr bool
	}{
		{"empty query", &QueryRequest{Query: ""}, true},
		{"valid query", &QueryRequest{Query: "hello"}, false},
		{"negative top_k", &QueryRequest{Query: "x", TopK: -1}, true},
		{"caps top_k at 100", &QueryRequest{Query: "x", TopK: 200}, false},
		{"negative max_contexts", &QueryRequest{Query: "x", MaxContexts: -3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.TopK > 100 {
				t.Errorf("expected top_k capped at 100, got %d", tt.query.TopK)
			}
		})
	}
}

func TestQueryRequest_ValidateInvalidConfig(t *testing.T) {
	q := &QueryRequest{Query: "x", TopK: -5}
	if err := q.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSourceError_Unwrap(t *testing.T) {
	err := NewSourceError("id-1", "report.pdf", ErrEmptyDocument)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Error("expected errors.Is to find ErrEmptyDocument")
	}
	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatal("expected errors.As to find *SourceError")
	}
	if se.Filename != "report.pdf" {
		t.Errorf("Filename=%q", se.Filename)
	}
	if got := err.Error(); got != `document "report.pdf": empty document` {
		t.Errorf("Error()=%q", got)
	}
}

func TestChunkID(t *testing.T) {
	if got := ChunkID("notes.txt", 3); got != "notes.txt_chunk_3" {
		t.Errorf("ChunkID=%q", got)
	}
}

func TestAnswer_Grounded(t *testing.T) {
	if (&Answer{Mode: AnswerFallback}).Grounded() {
		t.Error("fallback answer should not be grounded")
	}
	if !(&Answer{Mode: AnswerExtractive}).Grounded() {
		t.Error("extractive answer should be grounded")
	}
}
