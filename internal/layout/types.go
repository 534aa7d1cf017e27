/**
 * Layout types shared by extraction, region analysis and segmentation
 *
 * Coordinates live in one fixed pixel space per slide/page.
 */

package layout

// BoundingBox represents coordinates of a fragment or region.
// Width and Height are never negative.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StyleHints carries the optional typography of a fragment
type StyleHints struct {
	FontSize float64 `json:"fontSize,omitempty"`
	Bold     bool    `json:"isBold,omitempty"`
	Italic   bool    `json:"isItalic,omitempty"`
	Family   string  `json:"fontFamily,omitempty"`
	Color    string  `json:"color,omitempty"`
}

// TextFragment is an atomic piece of extracted text with its location.
// Fragments are read-only once extraction has produced them.
type TextFragment struct {
	ID    string      `json:"id"`
	Text  string      `json:"text"`
	Box   BoundingBox `json:"boundingBox"`
	Style StyleHints  `json:"style"`
}

// RegionType is the layout category shared by regions and segments
type RegionType string

const (
	RegionTitleGroup   RegionType = "title_group"
	RegionBodyText     RegionType = "body_text"
	RegionCaption      RegionType = "caption"
	RegionBulletList   RegionType = "bullet_list"
	RegionHeaderFooter RegionType = "header_footer"
	RegionCallout      RegionType = "callout"
	RegionNavigation   RegionType = "navigation"
	RegionOther        RegionType = "other"
)

var knownRegionTypes = map[RegionType]bool{
	RegionTitleGroup:   true,
	RegionBodyText:     true,
	RegionCaption:      true,
	RegionBulletList:   true,
	RegionHeaderFooter: true,
	RegionCallout:      true,
	RegionNavigation:   true,
	RegionOther:        true,
}

// ParseRegionType maps a free-form type label onto the fixed enum.
// Unknown labels become RegionOther.
func ParseRegionType(s string) RegionType {
	t := RegionType(normalizeLabel(s))
	if knownRegionTypes[t] {
		return t
	}
	switch t {
	case "title", "heading", "header", "title_block":
		return RegionTitleGroup
	case "body", "paragraph", "text", "body_copy":
		return RegionBodyText
	case "list", "bullets", "bullet", "bullet_points":
		return RegionBulletList
	case "footer", "page_number":
		return RegionHeaderFooter
	case "note", "highlight", "quote", "sidebar":
		return RegionCallout
	case "menu", "nav", "breadcrumb":
		return RegionNavigation
	}
	return RegionOther
}

// LayoutRegion is a typed spatial area of one slide or page
type LayoutRegion struct {
	ID              string      `json:"id"`
	Type            RegionType  `json:"type"`
	Box             BoundingBox `json:"boundingBox"`
	Topic           string      `json:"topic,omitempty"`
	SemanticContext string      `json:"semanticContext,omitempty"`
	FragmentIDs     []string    `json:"elements"`
}
