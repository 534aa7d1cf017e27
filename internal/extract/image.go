package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "github.com/chai2010/webp"
	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/segment-worker/internal/layout"
)

// OCRLine is one recognised line of text in pixel coordinates
type OCRLine struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// LineRecognizer finds text lines in an image
type LineRecognizer interface {
	Lines(ctx context.Context, data []byte) ([]OCRLine, error)
}

// TesseractRecognizer runs a local Tesseract engine through gosseract
type TesseractRecognizer struct {
	Language string
}

// NewTesseractRecognizer creates a recognizer for the given language (eng by default)
func NewTesseractRecognizer(language string) *TesseractRecognizer {
	if language == "" {
		language = "eng"
	}
	return &TesseractRecognizer{Language: language}
}

// Lines returns text-line boxes as reported by Tesseract
func (t *TesseractRecognizer) Lines(ctx context.Context, data []byte) ([]OCRLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(t.Language, "+")...); err != nil {
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	lines := make([]OCRLine, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, OCRLine{Text: b.Word, Box: b.Box, Confidence: b.Confidence})
	}
	return lines, nil
}

// minLineConfidence drops OCR noise such as borders read as text
const minLineConfidence = 30

// ExtractImage turns a single slide image into a one-slide deck whose
// fragments are the recognised text lines.
func ExtractImage(ctx context.Context, rec LineRecognizer, fileName string, data []byte) (*Deck, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	lines, err := rec.Lines(ctx, data)
	if err != nil {
		return nil, err
	}

	slide := Slide{
		ID:     "slide-1",
		Number: 1,
		Width:  float64(cfg.Width),
		Height: float64(cfg.Height),
	}
	for _, l := range lines {
		text := strings.TrimSpace(l.Text)
		if text == "" || l.Confidence < minLineConfidence {
			continue
		}
		h := float64(l.Box.Dy())
		slide.Fragments = append(slide.Fragments, layout.TextFragment{
			ID:   fmt.Sprintf("slide-1-ocr%d", len(slide.Fragments)+1),
			Text: text,
			Box: layout.BoundingBox{
				X:      float64(l.Box.Min.X),
				Y:      float64(l.Box.Min.Y),
				Width:  float64(l.Box.Dx()),
				Height: h,
			},
			// Line height in px approximates the point size at 96 dpi.
			Style: layout.StyleHints{FontSize: h * 0.75},
		})
	}

	return &Deck{FileName: fileName, Slides: []Slide{slide}}, nil
}
