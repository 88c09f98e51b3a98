package indexer

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestChunkText_Windows(t *testing.T) {
	ws, err := ChunkText("one two three four five six", 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []Window{
		{0, 3, "one two three"},
		{2, 5, "three four five"},
		{4, 6, "five six"},
	}
	if len(ws) != len(want) {
		t.Fatalf("got %d windows, want %d: %+v", len(ws), len(want), ws)
	}
	for i := range want {
		if ws[i] != want[i] {
			t.Errorf("window %d = %+v, want %+v", i, ws[i], want[i])
		}
	}
}

func TestChunkText_TrailingWindowInsidePrevious(t *testing.T) {
	ws, err := ChunkText("a b c d e", 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []Window{{0, 3, "a b c"}, {2, 5, "c d e"}, {4, 5, "e"}}
	if len(ws) != len(want) {
		t.Fatalf("got %+v, want %+v", ws, want)
	}
	for i := range want {
		if ws[i] != want[i] {
			t.Errorf("window %d = %+v, want %+v", i, ws[i], want[i])
		}
	}
}

func TestChunkText_CoverageAndOverlap(t *testing.T) {
	tests := []struct {
		words, target, overlap int
	}{
		{1, 3, 1},
		{5, 3, 1},
		{7, 3, 2},
		{10, 4, 0},
		{200, 200, 50},
		{451, 200, 50},
		{37, 5, 4},
	}
	for _, tt := range tests {
		parts := make([]string, tt.words)
		for i := range parts {
			parts[i] = "w"
		}
		ws, err := ChunkText(strings.Join(parts, " "), tt.target, tt.overlap)
		if err != nil {
			t.Fatal(err)
		}
		if ws[0].StartWord != 0 {
			t.Errorf("%+v: first window starts at %d", tt, ws[0].StartWord)
		}
		covered := 0
		for i, w := range ws {
			if w.StartWord > covered {
				t.Errorf("%+v: gap before window %d", tt, i)
			}
			if w.EndWord > covered {
				covered = w.EndWord
			}
			if w.EndWord-w.StartWord > tt.target {
				t.Errorf("%+v: window %d too long", tt, i)
			}
			// tail windows are clipped at W and may overlap by more
			if i > 0 && w.EndWord-w.StartWord == tt.target {
				prev := ws[i-1]
				if overlap := prev.EndWord - w.StartWord; overlap != tt.overlap {
					t.Errorf("%+v: windows %d/%d overlap %d", tt, i-1, i, overlap)
				}
			}
		}
		if covered != tt.words {
			t.Errorf("%+v: covered %d of %d words", tt, covered, tt.words)
		}
	}
}

func TestChunkText_Empty(t *testing.T) {
	ws, err := ChunkText("", 200, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(ws) != 0 {
		t.Errorf("expected no windows, got %d", len(ws))
	}
	ws, _ = ChunkText("   \n\t  ", 5, 1)
	if len(ws) != 0 {
		t.Errorf("whitespace-only text should yield no windows, got %d", len(ws))
	}
}

func TestChunkText_InvalidConfig(t *testing.T) {
	tests := []struct {
		name            string
		target, overlap int
	}{
		{"overlap equals target", 3, 3},
		{"overlap exceeds target", 3, 5},
		{"zero target", 0, 0},
		{"negative target", -1, 0},
		{"negative overlap", 3, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ChunkText("a b c", tt.target, tt.overlap)
			if !errors.Is(err, models.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if _, err := NewChunker(tt.target, tt.overlap); !errors.Is(err, models.ErrInvalidConfig) {
				t.Errorf("NewChunker: expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestChunker_Chunk(t *testing.T) {
	c, err := NewChunker(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	chunks := c.Chunk("doc1", "a.txt", "one two three four five six seven")
	// starts at 0, 2, 4, 6
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.SourceID != "doc1" {
			t.Errorf("chunk %d SourceID=%s", i, ch.SourceID)
		}
		if ch.Ordinal != i {
			t.Errorf("chunk %d Ordinal=%d", i, ch.Ordinal)
		}
		if ch.ChunkID != models.ChunkID("a.txt", i) {
			t.Errorf("chunk %d ChunkID=%s", i, ch.ChunkID)
		}
		if ch.Preview != ch.Text {
			t.Errorf("short chunk preview should equal text")
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c, _ := NewChunker(5, 1)
	if chunks := c.Chunk("d", "d.txt", "   \n\t  "); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestChunker_Preview(t *testing.T) {
	c, _ := NewChunker(10, 0)
	c.WithPreviewChars(5)
	chunks := c.Chunk("d", "d.txt", "héllo wörld")
	if got := chunks[0].Preview; got != "héllo" {
		t.Errorf("Preview=%q", got)
	}
	if chunks[0].Text != "héllo wörld" {
		t.Errorf("Text=%q", chunks[0].Text)
	}
}

func TestDedupe(t *testing.T) {
	rec := func(text string) models.ChunkRecord {
		return models.ChunkRecord{Chunk: models.Chunk{Text: text}}
	}
	in := []models.ChunkRecord{rec("a"), rec("b"), rec("a"), rec("c"), rec("b"), rec("A")}
	out, dropped := Dedupe(in)
	if dropped != 2 {
		t.Errorf("dropped=%d, want 2", dropped)
	}
	want := []string{"a", "b", "c", "A"}
	if len(out) != len(want) {
		t.Fatalf("got %d records", len(out))
	}
	for i := range want {
		if out[i].Text != want[i] {
			t.Errorf("out[%d]=%q, want %q", i, out[i].Text, want[i])
		}
	}
	again, droppedAgain := Dedupe(out)
	if droppedAgain != 0 || len(again) != len(out) {
		t.Error("Dedupe should be idempotent")
	}
}

func TestPreprocess(t *testing.T) {
	if Preprocess("  a  b  ") != "a b" {
		t.Error("expected trimmed and collapsed spaces")
	}
}

func TestPreprocess_ControlCharacters(t *testing.T) {
	if got := Preprocess("a\x00b\x07 \n c"); got != "ab c" {
		t.Errorf("got %q", got)
	}
}
