package extractor

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"
)

// TextSource returns the text of a document, one entry per page
type TextSource interface {
	Pages(content []byte) ([]string, error)
}

// TextFunc adapts a plain function to TextSource
type TextFunc func(content []byte) ([]string, error)

// Pages calls f(content)
func (f TextFunc) Pages(content []byte) ([]string, error) {
	return f(content)
}

// FitzSource reads PDF text with MuPDF
type FitzSource struct{}

// Pages opens the PDF from memory and extracts the text of every page
func (FitzSource) Pages(content []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", n+1, err)
		}
		pages = append(pages, text)
	}

	logrus.Debugf("Read %d page(s) from PDF", len(pages))
	return pages, nil
}
