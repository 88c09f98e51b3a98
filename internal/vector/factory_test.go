package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, [][]float32{{1, 0, 0}}, records("a")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if idx.Type() != "memory" {
		t.Errorf("Type=%s", idx.Type())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	// Empty string should default to memory
	idx, err := NewVectorIndex("", 0)
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()

	if idx.Size() != 0 {
		t.Errorf("Size=%d, want 0", idx.Size())
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	idx, err := NewVectorIndex("unknown", 3)
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for unknown index type, got %v", err)
	}
	if idx != nil {
		t.Error("expected nil index")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	_, err := NewVectorIndex("memory", -1)
	if err == nil {
		t.Error("expected error for negative dimension")
	}
}

func TestNewVectorIndex_FAISSUnavailableIsNil(t *testing.T) {
	if IsFAISSAvailable() {
		t.Skip("FAISS compiled in")
	}
	idx, err := NewVectorIndex("faiss", 3)
	if err == nil {
		t.Fatal("expected error without FAISS")
	}
	if idx != nil {
		t.Error("expected nil interface on error")
	}
}
