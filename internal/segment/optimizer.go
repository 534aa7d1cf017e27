package segment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adverant/nexus/segment-worker/internal/layout"
)

// SimilarDistance is the centroid distance under which two segments of the
// same page and category are merged.
const SimilarDistance = 50.0

// Optimize deduplicates, merges similar segments and sorts the result into
// reading order. It never fails; an empty input yields an empty output.
func Optimize(ids *IDGenerator, segments []Segment) []Segment {
	return Sort(MergeSimilar(ids, Deduplicate(segments)))
}

type dedupKey struct {
	page string
	text string
	x, y float64
}

// Deduplicate keeps the first segment for every (page, text, x, y).
func Deduplicate(segments []Segment) []Segment {
	seen := make(map[dedupKey]bool, len(segments))
	out := make([]Segment, 0, len(segments))

	for _, s := range segments {
		k := dedupKey{page: s.PageID, text: s.Text, x: s.Coordinates.X, y: s.Coordinates.Y}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// Similar reports whether a and b sit on the same page, share a category and
// have centroids closer than SimilarDistance.
func Similar(a, b Segment) bool {
	return a.PageID == b.PageID &&
		a.Category == b.Category &&
		layout.CentroidDistance(a.Coordinates, b.Coordinates) < SimilarDistance
}

// MergeSimilar makes one forward pass over segments. Each unprocessed
// segment merges with the earliest later unprocessed segment it is Similar
// to; both are then marked processed. Merged output is not rescanned, so
// three mutually close segments can end up as two results.
func MergeSimilar(ids *IDGenerator, segments []Segment) []Segment {
	processed := make([]bool, len(segments))
	out := make([]Segment, 0, len(segments))

	for i := range segments {
		if processed[i] {
			continue
		}
		processed[i] = true

		match := -1
		for j := i + 1; j < len(segments); j++ {
			if !processed[j] && Similar(segments[i], segments[j]) {
				match = j
				break
			}
		}

		if match < 0 {
			out = append(out, segments[i])
			continue
		}
		processed[match] = true
		out = append(out, mergeSegments(ids.Merged(), []Segment{segments[i], segments[match]}))
	}
	return out
}

// mergeSegments joins parts, in order, into one merged segment.
func mergeSegments(id string, parts []Segment) Segment {
	texts := make([]string, 0, len(parts))
	boxes := make([]layout.BoundingBox, 0, len(parts))
	origIDs := make([]string, 0, len(parts))
	confidence := parts[0].Confidence
	regionID := parts[0].RegionID
	elements := 0

	for _, p := range parts {
		texts = append(texts, p.Text)
		boxes = append(boxes, p.Coordinates)
		origIDs = append(origIDs, p.ID)
		confidence = lowerConfidence(confidence, p.Confidence)
		elements += p.elements()
		if p.RegionID != regionID {
			regionID = ""
		}
	}

	return Segment{
		ID:                 id,
		PageID:             parts[0].PageID,
		FragmentID:         id,
		RegionID:           regionID,
		Coordinates:        layout.Union(boxes...),
		Text:               strings.Join(texts, " "),
		Category:           parts[0].Category,
		Confidence:         confidence,
		Notes:              fmt.Sprintf("Merged from %d segments", len(parts)),
		IsMerged:           true,
		ElementCount:       elements,
		OriginalSegmentIDs: origIDs,
	}
}

// Sort orders segments by page, then y, then x. Page ids compare in natural
// order so "slide-2" precedes "slide-10". The sort is stable.
func Sort(segments []Segment) []Segment {
	out := append([]Segment(nil), segments...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PageID != b.PageID {
			return ComparePageIDs(a.PageID, b.PageID) < 0
		}
		if a.Coordinates.Y != b.Coordinates.Y {
			return a.Coordinates.Y < b.Coordinates.Y
		}
		return a.Coordinates.X < b.Coordinates.X
	})
	return out
}

// ComparePageIDs compares page ids treating digit runs as numbers.
func ComparePageIDs(a, b string) int {
	for a != "" && b != "" {
		ca, restA := nextChunk(a)
		cb, restB := nextChunk(b)

		if c := compareChunks(ca, cb); c != 0 {
			return c
		}
		a, b = restA, restB
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func nextChunk(s string) (string, string) {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func compareChunks(a, b string) int {
	if isDigit(a[0]) && isDigit(b[0]) {
		ta := strings.TrimLeft(a, "0")
		tb := strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			if len(ta) < len(tb) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
