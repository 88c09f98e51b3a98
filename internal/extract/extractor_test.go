package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes("notes.txt", []byte("Hello world\nLine 2"))
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "Hello world\nLine 2" {
		t.Errorf("got %q", got.Text)
	}
	if len(got.Pages) != 1 || got.Pages[0].Number != 1 {
		t.Errorf("expected a single page 1, got %+v", got.Pages)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes("README.rst", []byte("hello\x80world"))
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "hello\uFFFDworld" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtractBytes_unsupported(t *testing.T) {
	e := NewExtractor()
	for _, name := range []string{"raw.xyz", "noext", "slides.odp"} {
		_, err := e.ExtractBytes(name, []byte("raw content"))
		if !errors.Is(err, models.ErrUnsupportedFormat) {
			t.Errorf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestExtractor_Supports(t *testing.T) {
	e := NewExtractor()
	if !e.Supports("A.PDF") || !e.Supports("b.docx") || e.Supports("c.exe") {
		t.Error("unexpected Supports result")
	}
	exts := SupportedExtensions()
	exts[0] = ".mutated"
	if SupportedExtensions()[0] == ".mutated" {
		t.Error("SupportedExtensions should return a copy")
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"a b", "a b"},
		{"infor-\nmation", "information"},
		{"North-\nAmerica", "North-\nAmerica"},
		{"one\n\n\n\ntwo", "one\n\ntwo"},
		{"  lots \t of   space  ", "lots of space"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableToSentences(t *testing.T) {
	rows := [][]string{
		{"Name", "", "Role"},
		{"Ada", "x", "Engineer"},
		{"", "", ""},
		{"Bob", "", "nan", "extra"},
	}
	got := TableToSentences(rows)
	want := []string{
		"Name: Ada; col1: x; Role: Engineer.",
		"Name: Bob; col3: extra.",
	}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
	if TableToSentences([][]string{{"only header"}}) != nil {
		t.Error("header-only table should give no sentences")
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Course")
	f.SetCellValue("Sheet1", "B1", "Absences")
	f.SetCellValue("Sheet1", "A2", "Physics")
	f.SetCellValue("Sheet1", "B2", "4")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := NewExtractor()
	got, err := e.ExtractBytes("policy.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "Course: Physics; Absences: 4." {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_excelFileSingleRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Searchable text")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Searchable text" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_plainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "File content" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_nonexistent(t *testing.T) {
	if _, err := NewExtractor().Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

// minimalDocx returns a minimal .docx zip with word/document.xml holding the given body XML.
func minimalDocx(body string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func paragraph(runs ...string) string {
	s := `<w:p w:rsidR="00AB12"><w:pPr><w:pStyle w:val="Normal"/></w:pPr>`
	for _, r := range runs {
		s += `<w:r><w:t xml:space="preserve">` + r + `</w:t></w:r>`
	}
	return s + `</w:p>`
}

func TestExtractBytes_docx(t *testing.T) {
	content := minimalDocx(paragraph("Searchable ", "docx", " content") + paragraph() + paragraph("Second &amp; last"))
	got, err := NewExtractor().ExtractBytes("handbook.docx", content)
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "Searchable docx content\n\nSecond & last" {
		t.Errorf("got %q", got.Text)
	}
	if len(got.Pages) != 1 {
		t.Errorf("docx should produce one page, got %d", len(got.Pages))
	}
}

func TestExtractBytes_docxWithDocument2(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document2.xml"/>
</Types>`))
	fw, _ := w.Create("word/document2.xml")
	_, _ = fw.Write([]byte(`<w:document><w:body>` + paragraph("Content from document2") + `</w:body></w:document>`))
	_ = w.Close()

	got, err := NewExtractor().ExtractBytes("x.docx", buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "Content from document2" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtractBytes_docxMissingBody(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()
	if _, err := NewExtractor().ExtractBytes("x.docx", buf.Bytes()); err == nil {
		t.Error("expected error when document.xml missing")
	}
}

func TestExtractBytes_pptxSlidesInOrder(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, s := range []struct{ name, text string }{
		{"ppt/slides/slide10.xml", "Tenth slide"},
		{"ppt/slides/slide2.xml", "Second slide"},
		{"ppt/slides/_rels/slide2.xml.rels", "ignored"},
	} {
		fw, _ := w.Create(s.name)
		_, _ = fw.Write([]byte(`<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + s.text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`))
	}
	_ = w.Close()

	got, err := NewExtractor().ExtractBytes("deck.pptx", buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "Second slide\n\nTenth slide" {
		t.Errorf("got %q", got.Text)
	}
	if len(got.Pages) != 2 || got.Pages[0].Number != 2 || got.Pages[1].Number != 10 {
		t.Errorf("unexpected pages %+v", got.Pages)
	}
}

func TestExtractBytes_pptxEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("ppt/slides/other.xml")
	_, _ = w.Create("docProps/core.xml")
	_ = w.Close()
	got, err := NewExtractor().ExtractBytes("deck.pptx", buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_pptxNotZip(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes("deck.pptx", []byte("not a zip")); err == nil {
		t.Error("expected error for invalid pptx")
	}
}

func TestExtract_pdfInvalid(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes("scan.pdf", []byte("%PDF-garbage")); err == nil {
		t.Error("expected error for invalid pdf")
	}
}
