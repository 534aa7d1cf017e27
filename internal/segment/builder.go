package segment

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/segment-worker/internal/layout"
)

// BuildSegments turns one page's fragments and regions into candidate
// segments at three granularities:
//
//   - one combined segment per region with assigned fragments (high)
//   - one individual segment per assigned fragment (medium)
//   - one standalone, classifier-typed segment per fragment (medium)
//
// Overlap between the granularities is resolved later by Optimize.
func BuildSegments(ids *IDGenerator, pageID string, fragments []layout.TextFragment, regions []layout.LayoutRegion) []Segment {
	groups := make([][]int, len(regions))
	for fi, f := range fragments {
		if ri := layout.BestRegion(f, regions); ri >= 0 {
			groups[ri] = append(groups[ri], fi)
		}
	}

	segments := make([]Segment, 0, len(fragments)*2+len(regions))

	for ri, members := range groups {
		if len(members) == 0 {
			continue
		}
		region := regions[ri]
		segments = append(segments, combinedSegment(ids, pageID, region, fragments, members))

		for _, fi := range members {
			f := fragments[fi]
			segments = append(segments, Segment{
				ID:          ids.Individual(pageID, region.ID, fi),
				PageID:      pageID,
				FragmentID:  f.ID,
				RegionID:    region.ID,
				Coordinates: f.Box,
				Text:        f.Text,
				Category:    region.Type,
				Confidence:  ConfidenceMedium,
				Notes:       region.SemanticContext,
			})
		}
	}

	for fi, f := range fragments {
		segments = append(segments, Segment{
			ID:          ids.Standalone(pageID, fi),
			PageID:      pageID,
			FragmentID:  f.ID,
			Coordinates: f.Box,
			Text:        f.Text,
			Category:    layout.Classify(f),
			Confidence:  ConfidenceMedium,
			Notes:       "Classifier fallback",
		})
	}

	return segments
}

func combinedSegment(ids *IDGenerator, pageID string, region layout.LayoutRegion, fragments []layout.TextFragment, members []int) Segment {
	texts := make([]string, 0, len(members))
	boxes := make([]layout.BoundingBox, 0, len(members))
	for _, fi := range members {
		texts = append(texts, fragments[fi].Text)
		boxes = append(boxes, fragments[fi].Box)
	}

	notes := fmt.Sprintf("Combined from %d elements", len(members))
	if region.Topic != "" {
		notes += " (" + region.Topic + ")"
	}

	return Segment{
		ID:           ids.Combined(pageID, region.ID),
		PageID:       pageID,
		FragmentID:   "combined-" + region.ID,
		RegionID:     region.ID,
		Coordinates:  layout.Union(boxes...),
		Text:         strings.Join(texts, " "),
		Category:     region.Type,
		Confidence:   ConfidenceHigh,
		Notes:        notes,
		IsCombined:   true,
		ElementCount: len(members),
	}
}
