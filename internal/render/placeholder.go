/**
 * Placeholder slide images
 *
 * The worker does not render slides. Instead it draws each fragment's box and
 * text onto a blank canvas so the vision model sees the layout it is asked
 * to group. Images travel as data URLs inside the result payload.
 */

package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/adverant/nexus/segment-worker/internal/layout"
)

// Default slide size used when the source gives none (16:9 at 96 dpi).
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	background = color.NRGBA{255, 255, 255, 255}
	boxColor   = color.NRGBA{0, 120, 215, 255}
	textColor  = color.NRGBA{33, 33, 33, 255}
)

// Placeholder draws fragments onto a width x height canvas.
func Placeholder(fragments []layout.TextFragment, width, height int) *image.NRGBA {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	canvas := imaging.New(width, height, background)

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	for _, f := range fragments {
		x0, y0 := int(math.Round(f.Box.X)), int(math.Round(f.Box.Y))
		x1, y1 := int(math.Round(f.Box.X+f.Box.Width)), int(math.Round(f.Box.Y+f.Box.Height))
		drawRect(canvas, x0, y0, x1, y1, boxColor)

		d := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(textColor),
			Face: face,
		}
		maxChars := (x1 - x0 - 4) / 7
		y := y0 + lineHeight
		for _, line := range wrap(f.Text, maxChars) {
			if y > y1 && y > y0+lineHeight {
				break
			}
			d.Dot = fixed.P(x0+2, y)
			d.DrawString(line)
			y += lineHeight
		}
	}

	return canvas
}

// Encode scales img to fit maxDim and encodes it as png or webp. It returns
// the bytes and their MIME type.
func Encode(img image.Image, format string, maxDim int) ([]byte, string, error) {
	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return nil, "", fmt.Errorf("failed to encode webp: %w", err)
		}
		return buf.Bytes(), "image/webp", nil
	case "", "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, "", fmt.Errorf("failed to encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	default:
		return nil, "", fmt.Errorf("unsupported slide image format %q", format)
	}
}

// DataURL wraps encoded image bytes as a data: URL.
func DataURL(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func drawRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	for x := x0; x < x1; x++ {
		setPixel(img, x, y0, c)
		setPixel(img, x, y1-1, c)
	}
	for y := y0; y < y1; y++ {
		setPixel(img, x0, y, c)
		setPixel(img, x1-1, y, c)
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetNRGBA(x, y, c)
	}
}

// wrap splits text into lines of at most width characters on word
// boundaries. Words longer than width are cut.
func wrap(text string, width int) []string {
	if width < 1 {
		width = 1
	}

	var lines []string
	var current []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(current) > 0 {
				lines = append(lines, string(current))
				current = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(current) == 0:
			current = w
		case len(current)+1+len(w) <= width:
			current = append(append(current, ' '), w...)
		default:
			lines = append(lines, string(current))
			current = w
		}
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}
