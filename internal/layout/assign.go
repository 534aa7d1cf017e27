package layout

import (
	"math"
	"strings"
	"unicode"
)

const (
	containmentBonus = 0.3
	semanticWeight   = 0.2
	minSemanticToken = 3
)

// AssignRegion picks the region with the strictly highest composite score
// for f. Ties go to the earlier region. The second result is false when no
// region scores above zero.
func AssignRegion(f TextFragment, regions []LayoutRegion) (LayoutRegion, bool) {
	i := BestRegion(f, regions)
	if i < 0 {
		return LayoutRegion{}, false
	}
	return regions[i], true
}

// BestRegion is AssignRegion returning the index into regions, or -1.
func BestRegion(f TextFragment, regions []LayoutRegion) int {
	best := -1
	bestScore := 0.0

	for i, r := range regions {
		score := RegionScore(f, r)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// RegionScore combines the spatial overlap ratio, a containment bonus and
// the lexical similarity between the fragment and the region's topic.
func RegionScore(f TextFragment, r LayoutRegion) float64 {
	score := 0.0

	if denom := math.Max(f.Box.Area(), r.Box.Area()); denom > 0 {
		score += OverlapArea(f.Box, r.Box) / denom
	}
	if IsContained(f.Box, r.Box) {
		score += containmentBonus
	}

	return score + SemanticSimilarity(f.Text, r.Topic, r.SemanticContext)
}

// SemanticSimilarity returns 0.2 times the share of topic/context tokens
// found (case-insensitively) inside text. Tokens shorter than three
// characters count towards the total but never match.
func SemanticSimilarity(text, topic, semanticContext string) float64 {
	tokens := tokenize(topic + " " + semanticContext)
	if len(tokens) == 0 {
		return 0
	}

	haystack := strings.ToLower(text)
	matches := 0
	for _, tok := range tokens {
		if len([]rune(tok)) >= minSemanticToken && strings.Contains(haystack, strings.ToLower(tok)) {
			matches++
		}
	}

	return float64(matches) / float64(len(tokens)) * semanticWeight
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
}
