package document

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	TypePDF  = "pdf"
	TypeDOCX = "docx"
)

// CheckSupported returns the document type for path, or ErrUnsupportedType.
func CheckSupported(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return TypePDF, nil
	case ".docx":
		return TypeDOCX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(path))
	}
}

// Extract reads the plain text of the document at path.
func Extract(path string) (string, error) {
	kind, err := CheckSupported(path)
	if err != nil {
		return "", err
	}
	switch kind {
	case TypePDF:
		return extractPDF(path)
	default:
		return extractDOCX(path)
	}
}

// Hash returns the first n hex characters of the SHA-256 digest of data.
func Hash(data []byte, n int) string {
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}

// extractPDF joins the text of every page with a newline. Pages the page
// tree counts but does not hold are skipped.
func extractPDF(path string) (text string, err error) {
	// The pdf package panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		// Each text object starts on a fresh line
		pages = append(pages, strings.Trim(content, "\n"))
	}
	return strings.Join(pages, "\n"), nil
}

// extractDOCX joins the text of every body paragraph with a newline.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("open docx: word/document.xml not found")
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()

	paragraphs, err := wordParagraphs(rc)
	if err != nil {
		return "", fmt.Errorf("parse docx body: %w", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

// wordParagraphs walks WordprocessingML and collects the text of each <w:p>.
// Tabs and breaks inside a paragraph become whitespace.
func wordParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	depth := 0
	inText := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					current.Reset()
				}
				depth++
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				depth--
				if depth == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
