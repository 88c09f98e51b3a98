package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// slideName matches ppt/slides/slideN.xml and captures N.
var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// atTag matches <a:t>text</a:t> or <a:t xml:space="preserve">text</a:t>.
var atTag = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)

type slidePart struct {
	number int
	file   *zip.File
}

// extractPPTX returns one page per slide in slide-number order.
func extractPPTX(content []byte) ([]models.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	var slides []slidePart
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slidePart{number: n, file: f})
	}
	slices.SortFunc(slides, func(a, b slidePart) int { return a.number - b.number })

	pages := make([]models.Page, 0, len(slides))
	for _, s := range slides {
		data, err := readZipPart(zr, s.file.Name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		parts := atTag.FindAllStringSubmatch(string(data), -1)
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(xmlText(p[1])); t != "" {
				texts = append(texts, t)
			}
		}
		pages = append(pages, models.Page{Number: s.number, Text: strings.Join(texts, " ")})
	}
	return pages, nil
}
