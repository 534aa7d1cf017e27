/**
 * Segments - the translation units produced for review and export
 *
 * Segments are built per slide by the Builder, collapsed by the optimizer
 * and edited only in the review stage.
 */

package segment

import "github.com/adverant/nexus/segment-worker/internal/layout"

// Confidence is a coarse trust label, not a probability
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	}
	return 0
}

// lowerConfidence returns the less trusted of a and b.
func lowerConfidence(a, b Confidence) Confidence {
	if b.rank() < a.rank() {
		return b
	}
	return a
}

// Segment is one externally visible unit of translation
type Segment struct {
	ID                 string             `json:"id"`
	PageID             string             `json:"slideId"`
	FragmentID         string             `json:"elementId"`
	RegionID           string             `json:"contextId,omitempty"`
	Coordinates        layout.BoundingBox `json:"coordinates"`
	Text               string             `json:"text"`
	Category           layout.RegionType  `json:"category"`
	Confidence         Confidence         `json:"confidence"`
	Notes              string             `json:"notes,omitempty"`
	IsCombined         bool               `json:"isCombined,omitempty"`
	IsMerged           bool               `json:"isMerged,omitempty"`
	ElementCount       int                `json:"elementCount,omitempty"`
	OriginalSegmentIDs []string           `json:"originalSegmentIds,omitempty"`
}

// elements counts how many source fragments a segment stands for.
func (s Segment) elements() int {
	if s.ElementCount > 0 {
		return s.ElementCount
	}
	return 1
}
