package layout

import (
	"strings"
	"unicode/utf8"
)

const (
	titleMinFontSize = 20
	titleMaxLength   = 100
	captionMaxLength = 200
)

// Classify maps a fragment onto a layout category using its text and style.
// Rules are evaluated in priority order: title, bullet, caption, body.
func Classify(f TextFragment) RegionType {
	text := strings.TrimSpace(f.Text)
	length := utf8.RuneCountInString(text)

	if (f.Style.FontSize >= titleMinFontSize || f.Style.Bold) &&
		length < titleMaxLength && !strings.Contains(text, ".") {
		return RegionTitleGroup
	}

	if hasBulletMarker(text) {
		return RegionBulletList
	}

	if length < captionMaxLength {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "figure") || strings.Contains(lower, "table") {
			return RegionCaption
		}
	}

	return RegionBodyText
}

func hasBulletMarker(text string) bool {
	return strings.Contains(text, "•") ||
		strings.HasPrefix(text, "-") ||
		strings.HasPrefix(text, "*")
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, s)
}
