package extract

import (
	"encoding/xml"
	"strings"
)

// Subset of PresentationML needed to place text on a slide. Tags carry local
// names only; encoding/xml then matches any namespace.

type presentationDoc struct {
	XMLName  xml.Name     `xml:"presentation"`
	SlideIDs []slideRef   `xml:"sldIdLst>sldId"`
	Size     *slideSizeEl `xml:"sldSz"`
}

type slideRef struct {
	ID  string `xml:"id,attr"`
	RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
}

type slideSizeEl struct {
	Cx int64 `xml:"cx,attr"`
	Cy int64 `xml:"cy,attr"`
}

type relationshipsDoc struct {
	XMLName xml.Name       `xml:"Relationships"`
	Items   []relationship `xml:"Relationship"`
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

type slideDoc struct {
	XMLName xml.Name  `xml:"sld"`
	Tree    shapeTree `xml:"cSld>spTree"`
}

// shapeTree keeps the shapes, frames and groups of an spTree or grpSp in
// document order, which is the order text is read in.
type shapeTree struct {
	Items []treeItem
}

// treeItem holds exactly one of its fields.
type treeItem struct {
	Shape *shapeEl
	Frame *graphicFrameEl
	Group *groupEl
}

func (t *shapeTree) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	return t.decodeChildren(d, nil)
}

// decodeChildren reads child elements up to the closing tag. Elements that
// are not shapes go to other, or are skipped when other is nil.
func (t *shapeTree) decodeChildren(d *xml.Decoder, other func(*xml.Decoder, xml.StartElement) error) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if err := t.decodeChild(d, el, other); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (t *shapeTree) decodeChild(d *xml.Decoder, el xml.StartElement, other func(*xml.Decoder, xml.StartElement) error) error {
	switch el.Name.Local {
	case "sp":
		sp := &shapeEl{}
		if err := d.DecodeElement(sp, &el); err != nil {
			return err
		}
		t.Items = append(t.Items, treeItem{Shape: sp})
	case "graphicFrame":
		frame := &graphicFrameEl{}
		if err := d.DecodeElement(frame, &el); err != nil {
			return err
		}
		t.Items = append(t.Items, treeItem{Frame: frame})
	case "grpSp":
		group := &groupEl{}
		if err := d.DecodeElement(group, &el); err != nil {
			return err
		}
		t.Items = append(t.Items, treeItem{Group: group})
	default:
		if other != nil {
			return other(d, el)
		}
		return d.Skip()
	}
	return nil
}

type groupEl struct {
	Xfrm *transformEl
	Tree shapeTree
}

func (g *groupEl) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	return g.Tree.decodeChildren(d, func(d *xml.Decoder, el xml.StartElement) error {
		if el.Name.Local != "grpSpPr" {
			return d.Skip()
		}
		var props struct {
			Xfrm *transformEl `xml:"xfrm"`
		}
		if err := d.DecodeElement(&props, &el); err != nil {
			return err
		}
		g.Xfrm = props.Xfrm
		return nil
	})
}

type shapeEl struct {
	Props       nonVisualProps `xml:"nvSpPr>cNvPr"`
	Placeholder *placeholderEl `xml:"nvSpPr>nvPr>ph"`
	Xfrm        *transformEl   `xml:"spPr>xfrm"`
	Body        *textBodyEl    `xml:"txBody"`
}

type nonVisualProps struct {
	ID   int    `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type placeholderEl struct {
	Type string `xml:"type,attr"`
	Idx  int    `xml:"idx,attr"`
}

type transformEl struct {
	Off      point   `xml:"off"`
	Ext      extent  `xml:"ext"`
	ChildOff *point  `xml:"chOff"`
	ChildExt *extent `xml:"chExt"`
}

type point struct {
	X int64 `xml:"x,attr"`
	Y int64 `xml:"y,attr"`
}

type extent struct {
	Cx int64 `xml:"cx,attr"`
	Cy int64 `xml:"cy,attr"`
}

type textBodyEl struct {
	Paragraphs []paragraphEl `xml:"p"`
}

type paragraphEl struct {
	Props  *paragraphProps `xml:"pPr"`
	Runs   []runEl         `xml:"r"`
	Fields []runEl         `xml:"fld"`
	EndRPr *runProps       `xml:"endParaRPr"`
}

type paragraphProps struct {
	Level  int         `xml:"lvl,attr"`
	BuNone *struct{}   `xml:"buNone"`
	BuChar *bulletChar `xml:"buChar"`
}

type bulletChar struct {
	Char string `xml:"char,attr"`
}

type runEl struct {
	Props *runProps `xml:"rPr"`
	Text  string    `xml:"t"`
}

type runProps struct {
	Size   int          `xml:"sz,attr"` // hundredths of a point
	Bold   string       `xml:"b,attr"`
	Italic string       `xml:"i,attr"`
	Latin  *typefaceEl  `xml:"latin"`
	Fill   *solidFillEl `xml:"solidFill"`
}

type typefaceEl struct {
	Typeface string `xml:"typeface,attr"`
}

type solidFillEl struct {
	RGB *colorVal `xml:"srgbClr"`
}

type colorVal struct {
	Val string `xml:"val,attr"`
}

type graphicFrameEl struct {
	Props nonVisualProps `xml:"nvGraphicFramePr>cNvPr"`
	Xfrm  *transformEl   `xml:"xfrm"`
	Table *tableEl       `xml:"graphic>graphicData>tbl"`
}

type tableEl struct {
	Columns []gridCol `xml:"tblGrid>gridCol"`
	Rows    []rowEl   `xml:"tr"`
}

type gridCol struct {
	W int64 `xml:"w,attr"`
}

type rowEl struct {
	H     int64    `xml:"h,attr"`
	Cells []cellEl `xml:"tc"`
}

type cellEl struct {
	Body     *textBodyEl `xml:"txBody"`
	GridSpan int         `xml:"gridSpan,attr"`
	HMerge   string      `xml:"hMerge,attr"`
	VMerge   string      `xml:"vMerge,attr"`
}

func xmlBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on":
		return true
	}
	return false
}
