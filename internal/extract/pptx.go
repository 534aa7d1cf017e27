package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/adverant/nexus/segment-worker/internal/layout"
)

const (
	emuPerPixel = 9525 // 914400 EMU per inch at 96 dpi

	defaultSlideCx = 12192000 // 13.333in, 16:9
	defaultSlideCy = 6858000  // 7.5in

	titleFontSize   = 44
	defaultFontSize = 18

	maxPartSize = 64 << 20
)

// ExtractPresentation reads a .pptx file and returns every text paragraph
// as a located fragment, slide by slide in presentation order.
func ExtractPresentation(fileName string, data []byte) (*Deck, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening ZIP archive: %w", err)
	}

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	var pres presentationDoc
	if err := readXMLPart(parts, "ppt/presentation.xml", &pres); err != nil {
		return nil, fmt.Errorf("parsing presentation: %w", err)
	}

	slideCx, slideCy := int64(defaultSlideCx), int64(defaultSlideCy)
	if pres.Size != nil && pres.Size.Cx > 0 && pres.Size.Cy > 0 {
		slideCx, slideCy = pres.Size.Cx, pres.Size.Cy
	}

	slidePaths := orderedSlidePaths(parts, &pres)
	if len(slidePaths) == 0 {
		return nil, fmt.Errorf("no slides found in presentation")
	}

	deck := &Deck{FileName: fileName}
	for i, p := range slidePaths {
		var doc slideDoc
		if err := readXMLPart(parts, p, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}

		w := &slideWalker{
			slideID: fmt.Sprintf("slide-%d", i+1),
			slideCx: slideCx,
			slideCy: slideCy,
		}
		w.walk(&doc.Tree, identity)

		deck.Slides = append(deck.Slides, Slide{
			ID:        w.slideID,
			Number:    i + 1,
			Width:     float64(slideCx) / emuPerPixel,
			Height:    float64(slideCy) / emuPerPixel,
			Fragments: w.fragments,
		})
	}

	return deck, nil
}

// orderedSlidePaths follows sldIdLst through the presentation relationships.
// Archives without usable relationships fall back to slideN.xml numbering.
func orderedSlidePaths(parts map[string]*zip.File, pres *presentationDoc) []string {
	var rels relationshipsDoc
	if err := readXMLPart(parts, "ppt/_rels/presentation.xml.rels", &rels); err == nil && len(pres.SlideIDs) > 0 {
		targets := make(map[string]string, len(rels.Items))
		for _, r := range rels.Items {
			targets[r.ID] = resolveTarget(r.Target)
		}

		var ordered []string
		for _, s := range pres.SlideIDs {
			if p, ok := targets[s.RID]; ok && parts[p] != nil {
				ordered = append(ordered, p)
			}
		}
		if len(ordered) > 0 {
			return ordered
		}
	}

	var found []string
	for name := range parts {
		if strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml") {
			found = append(found, name)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return slideNumber(found[i]) < slideNumber(found[j])
	})
	return found
}

func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("ppt", target)
}

func slideNumber(name string) int {
	var n int
	fmt.Sscanf(strings.TrimPrefix(name, "ppt/slides/slide"), "%d", &n)
	return n
}

func readXMLPart(parts map[string]*zip.File, name string, v interface{}) error {
	f, ok := parts[name]
	if !ok {
		return fmt.Errorf("missing part %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

// emuTransform maps child EMU coordinates into slide EMU coordinates.
type emuTransform struct {
	offX, offY     float64
	scaleX, scaleY float64
}

var identity = emuTransform{scaleX: 1, scaleY: 1}

func (t emuTransform) apply(x, y int64) (float64, float64) {
	return t.offX + float64(x)*t.scaleX, t.offY + float64(y)*t.scaleY
}

// child composes t with a group's own transform.
func (t emuTransform) child(g *transformEl) emuTransform {
	if g == nil {
		return t
	}
	sx, sy := 1.0, 1.0
	var chX, chY int64
	if g.ChildOff != nil {
		chX, chY = g.ChildOff.X, g.ChildOff.Y
	}
	if g.ChildExt != nil && g.ChildExt.Cx > 0 && g.ChildExt.Cy > 0 {
		sx = float64(g.Ext.Cx) / float64(g.ChildExt.Cx)
		sy = float64(g.Ext.Cy) / float64(g.ChildExt.Cy)
	}

	return emuTransform{
		offX:   t.offX + t.scaleX*(float64(g.Off.X)-float64(chX)*sx),
		offY:   t.offY + t.scaleY*(float64(g.Off.Y)-float64(chY)*sy),
		scaleX: t.scaleX * sx,
		scaleY: t.scaleY * sy,
	}
}

type slideWalker struct {
	slideID   string
	slideCx   int64
	slideCy   int64
	seq       int
	fragments []layout.TextFragment
}

func (w *slideWalker) nextID() string {
	w.seq++
	return fmt.Sprintf("%s-el%d", w.slideID, w.seq)
}

func (w *slideWalker) walk(tree *shapeTree, t emuTransform) {
	for _, item := range tree.Items {
		switch {
		case item.Shape != nil:
			w.shape(item.Shape, t)
		case item.Frame != nil:
			w.table(item.Frame, t)
		case item.Group != nil:
			w.walk(&item.Group.Tree, t.child(item.Group.Xfrm))
		}
	}
}

func (w *slideWalker) box(x, y, cx, cy int64, t emuTransform) layout.BoundingBox {
	x0, y0 := t.apply(x, y)
	x1, y1 := t.apply(x+cx, y+cy)
	return layout.BoundingBox{
		X:      x0 / emuPerPixel,
		Y:      y0 / emuPerPixel,
		Width:  (x1 - x0) / emuPerPixel,
		Height: (y1 - y0) / emuPerPixel,
	}
}

// placeholderBox guesses where a placeholder without its own transform sits.
// Real positions live in the slide layout, which is not read.
func (w *slideWalker) placeholderBox(ph *placeholderEl) (x, y, cx, cy int64) {
	sx, sy := w.slideCx, w.slideCy
	kind := ""
	if ph != nil {
		kind = ph.Type
	}
	switch kind {
	case "title", "ctrTitle":
		return sx / 20, sy / 25, sx * 9 / 10, sy * 3 / 20
	case "subTitle":
		return sx / 20, sy * 11 / 20, sx * 9 / 10, sy / 5
	case "ftr", "sldNum", "dt":
		return sx / 20, sy * 9 / 10, sx * 9 / 10, sy / 20
	default:
		return sx / 20, sy * 11 / 50, sx * 9 / 10, sy * 7 / 10
	}
}

func (w *slideWalker) shape(sp *shapeEl, t emuTransform) {
	if sp.Body == nil {
		return
	}

	var x, y, cx, cy int64
	if sp.Xfrm != nil {
		x, y, cx, cy = sp.Xfrm.Off.X, sp.Xfrm.Off.Y, sp.Xfrm.Ext.Cx, sp.Xfrm.Ext.Cy
	} else {
		x, y, cx, cy = w.placeholderBox(sp.Placeholder)
	}
	shapeBox := w.box(x, y, cx, cy, t)

	isTitle := sp.Placeholder != nil && (sp.Placeholder.Type == "title" || sp.Placeholder.Type == "ctrTitle")

	type para struct {
		text  string
		style layout.StyleHints
	}
	var paras []para
	for i := range sp.Body.Paragraphs {
		p := &sp.Body.Paragraphs[i]
		text := paragraphText(p)
		if text == "" {
			continue
		}
		paras = append(paras, para{text: text, style: paragraphStyle(p, isTitle)})
	}
	if len(paras) == 0 {
		return
	}

	// Paragraphs share the shape box, stacked top to bottom.
	h := shapeBox.Height / float64(len(paras))
	for i, p := range paras {
		w.fragments = append(w.fragments, layout.TextFragment{
			ID:   w.nextID(),
			Text: p.text,
			Box: layout.BoundingBox{
				X:      shapeBox.X,
				Y:      shapeBox.Y + float64(i)*h,
				Width:  shapeBox.Width,
				Height: h,
			},
			Style: p.style,
		})
	}
}

func (w *slideWalker) table(gf *graphicFrameEl, t emuTransform) {
	if gf.Table == nil || gf.Xfrm == nil {
		return
	}

	colX := make([]int64, len(gf.Table.Columns)+1)
	for i, c := range gf.Table.Columns {
		colX[i+1] = colX[i] + c.W
	}

	rowY := gf.Xfrm.Off.Y
	for _, row := range gf.Table.Rows {
		col := 0
		for _, cell := range row.Cells {
			span := cell.GridSpan
			if span < 1 {
				span = 1
			}
			start := col
			col += span
			if xmlBool(cell.HMerge) || xmlBool(cell.VMerge) || cell.Body == nil {
				continue
			}
			if start >= len(colX)-1 {
				break
			}
			end := col
			if end > len(colX)-1 {
				end = len(colX) - 1
			}

			var texts []string
			var style layout.StyleHints
			for i := range cell.Body.Paragraphs {
				p := &cell.Body.Paragraphs[i]
				if txt := paragraphText(p); txt != "" {
					if len(texts) == 0 {
						style = paragraphStyle(p, false)
					}
					texts = append(texts, txt)
				}
			}
			if len(texts) == 0 {
				continue
			}

			w.fragments = append(w.fragments, layout.TextFragment{
				ID:    w.nextID(),
				Text:  strings.Join(texts, " "),
				Box:   w.box(gf.Xfrm.Off.X+colX[start], rowY, colX[end]-colX[start], row.H, t),
				Style: style,
			})
		}
		rowY += row.H
	}
}

func paragraphText(p *paragraphEl) string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	for _, f := range p.Fields {
		b.WriteString(f.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return ""
	}

	if p.Props != nil && p.Props.BuNone == nil && p.Props.BuChar != nil && p.Props.BuChar.Char != "" {
		text = p.Props.BuChar.Char + " " + text
	}
	return text
}

func paragraphStyle(p *paragraphEl, isTitle bool) layout.StyleHints {
	var rp *runProps
	for _, r := range p.Runs {
		if r.Props != nil {
			rp = r.Props
			break
		}
	}
	if rp == nil {
		rp = p.EndRPr
	}

	style := layout.StyleHints{FontSize: defaultFontSize}
	if isTitle {
		style.FontSize = titleFontSize
	}
	if rp == nil {
		return style
	}

	if rp.Size > 0 {
		style.FontSize = float64(rp.Size) / 100
	}
	style.Bold = xmlBool(rp.Bold)
	style.Italic = xmlBool(rp.Italic)
	if rp.Latin != nil {
		style.Family = rp.Latin.Typeface
	}
	if rp.Fill != nil && rp.Fill.RGB != nil && rp.Fill.RGB.Val != "" {
		style.Color = "#" + strings.ToUpper(rp.Fill.RGB.Val)
	}
	return style
}
