package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Extractor routes an upload to the adapter for its variant and format
type Extractor struct {
	Text *TextExtractor
	OCR  LineRecognizer
}

// NewExtractor creates an extractor using tempDir for PDF staging and
// Tesseract with the given language for slide images.
func NewExtractor(tempDir, ocrLanguage string) *Extractor {
	return &Extractor{
		Text: &TextExtractor{TempDir: tempDir},
		OCR:  NewTesseractRecognizer(ocrLanguage),
	}
}

// ExtractDeck returns per-slide fragments for a visual upload.
func (e *Extractor) ExtractDeck(ctx context.Context, fileName string, data []byte) (*Deck, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pptx":
		return ExtractPresentation(fileName, data)
	case ".png", ".jpg", ".jpeg", ".webp":
		if e.OCR == nil {
			return nil, fmt.Errorf("no OCR engine configured for %s", fileName)
		}
		return ExtractImage(ctx, e.OCR, fileName, data)
	}
	return nil, fmt.Errorf("no slide extractor for %s", fileName)
}

// ExtractText returns normalised plain text for a glossary upload.
func (e *Extractor) ExtractText(fileName string, data []byte) (string, error) {
	t := e.Text
	if t == nil {
		t = &TextExtractor{}
	}
	return t.Extract(fileName, data)
}
