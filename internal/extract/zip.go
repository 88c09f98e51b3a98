package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
)

// readZipPart returns the contents of the named part, or nil if it is absent.
func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

// xmlText decodes the character entities of an XML text node.
func xmlText(s string) string {
	return html.UnescapeString(s)
}
