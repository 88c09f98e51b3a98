//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestFAISSIndex_AddSearch(t *testing.T) {
	idx, err := NewFAISSIndex(0)
	if err != nil {
		t.Fatalf("NewFAISSIndex: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	same := []float32{0.6, 0.8}
	if err := idx.Add(ctx, [][]float32{{1, 0}, same, same}, records("a", "b", "c")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hits, err := idx.Search(ctx, same, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].Index != 1 || hits[1].Index != 2 {
		t.Errorf("unexpected hits: %+v", hits)
	}
	if math.Abs(hits[0].Score-1) > 1e-6 {
		t.Errorf("self-query score=%v", hits[0].Score)
	}
}

func TestFAISSIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.faiss")
	ctx := context.Background()

	idx, _ := NewFAISSIndex(3)
	_ = idx.Add(ctx, [][]float32{{1, 0, 0}, {0, 1, 0}}, records("a", "b"))
	before, _ := idx.Search(ctx, []float32{0, 1, 0}, 2)
	if err := idx.Save(ctx, path, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	idx.Close()

	loaded, _ := NewFAISSIndex(0)
	defer loaded.Close()
	if err := loaded.Load(ctx, path, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	after, _ := loaded.Search(ctx, []float32{0, 1, 0}, 2)
	for i := range before {
		if before[i].Score != after[i].Score || before[i].Index != after[i].Index {
			t.Errorf("hit %d differs after load", i)
		}
	}
}
