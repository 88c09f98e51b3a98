package embedding

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"the", "refund", "policy", "un", "##aff", "##able", ",", "!", "cafe", "$", "中",
}

func testTokenizer(t *testing.T) *WordPieceTokenizer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(testVocab, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadWordPieceVocab(path)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestWordPieceTokenizer_Tokenize(t *testing.T) {
	tok := testTokenizer(t)
	tests := []struct {
		name string
		text string
		want []int64
	}{
		{"whole words", "the refund policy", []int64{2, 4, 5, 6, 3, 0}},
		{"continuation pieces", "unaffable", []int64{2, 7, 8, 9, 3, 0}},
		{"punctuation split", "refund, policy!", []int64{2, 5, 10, 6, 11, 3}},
		{"case and accents folded", "CAFÉ", []int64{2, 12, 3, 0, 0, 0}},
		{"unknown word", "zebra", []int64{2, 1, 3, 0, 0, 0}},
		{"ascii symbol split", "$refund", []int64{2, 13, 5, 3, 0, 0}},
		{"cjk split", "中中", []int64{2, 14, 14, 3, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, attn, types := tok.Tokenize(tt.text, 6)
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, ids, tt.want)
			}
			for i := range ids {
				wantMask := int64(0)
				if i == 0 || ids[i] != 0 {
					wantMask = 1
				}
				if attn[i] != wantMask {
					t.Errorf("attention mask %v does not cover exactly the tokens", attn)
					break
				}
			}
			if len(types) != 6 {
				t.Errorf("token types length %d", len(types))
			}
		})
	}
}

func TestWordPieceTokenizer_Truncates(t *testing.T) {
	ids, attn, _ := testTokenizer(t).Tokenize("the the the the the the", 4)
	if !reflect.DeepEqual(ids, []int64{2, 4, 4, 3}) {
		t.Errorf("ids = %v", ids)
	}
	if attn[3] != 1 {
		t.Error("last slot should be an attended SEP")
	}
}

func TestNewWordPieceTokenizer_requiresSpecialTokens(t *testing.T) {
	if _, err := NewWordPieceTokenizer(map[string]int64{"[CLS]": 0, "[SEP]": 1}); err == nil {
		t.Error("expected error for vocabulary without [UNK]")
	}
	if _, err := LoadWordPieceVocab(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing vocabulary file")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("expected different hashes")
	}
}
