/**
 * Extraction - turning uploads into text or located fragments
 *
 * Visual uploads (.pptx, slide images) become per-slide fragment lists.
 * Glossary uploads (.txt, .md, .html, .pdf, .docx) become plain text.
 */

package extract

import "github.com/adverant/nexus/segment-worker/internal/layout"

// Variant selects which pipeline an upload is meant for
type Variant string

const (
	VariantVisual   Variant = "visual"
	VariantGlossary Variant = "glossary"
)

// Slide is one page of a visual upload with its fragments in pixel space
type Slide struct {
	ID        string
	Number    int
	Width     float64
	Height    float64
	Fragments []layout.TextFragment
}

// Deck is the fragment-level content of a visual upload
type Deck struct {
	FileName string
	Slides   []Slide
}

// FragmentCount sums fragments across all slides.
func (d *Deck) FragmentCount() int {
	n := 0
	for _, s := range d.Slides {
		n += len(s.Fragments)
	}
	return n
}
