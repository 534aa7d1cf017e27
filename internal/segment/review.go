package segment

import (
	"fmt"
	"strings"
)

// Review edits applied while a document waits in ready-for-review. Every
// edit returns a new sorted list and leaves its input untouched.

// AddSegment inserts a reviewer-created segment. A missing or clashing id is
// replaced with a fresh one from ids.
func AddSegment(ids *IDGenerator, segments []Segment, s Segment) ([]Segment, Segment, error) {
	if strings.TrimSpace(s.PageID) == "" {
		return nil, Segment{}, fmt.Errorf("segment must name a page")
	}
	if strings.TrimSpace(s.Text) == "" {
		return nil, Segment{}, fmt.Errorf("segment text is empty")
	}

	if s.ID == "" || indexOf(segments, s.ID) >= 0 {
		s.ID = ids.Manual(s.PageID)
	}
	if s.FragmentID == "" {
		s.FragmentID = s.ID
	}
	if s.Confidence == "" {
		s.Confidence = ConfidenceHigh
	}

	out := append(append([]Segment(nil), segments...), s)
	return Sort(out), s, nil
}

// RemoveSegment drops the segment with the given id. The bool is false when
// no such segment exists.
func RemoveSegment(segments []Segment, id string) ([]Segment, bool) {
	i := indexOf(segments, id)
	if i < 0 {
		return Sort(segments), false
	}

	out := make([]Segment, 0, len(segments)-1)
	out = append(out, segments[:i]...)
	out = append(out, segments[i+1:]...)
	return Sort(out), true
}

// MergeSegments replaces the named segments, which must share a page, with
// one merged segment. Text is joined in the list's current order.
func MergeSegments(ids *IDGenerator, segments []Segment, segmentIDs []string) ([]Segment, Segment, error) {
	if len(segmentIDs) < 2 {
		return nil, Segment{}, fmt.Errorf("merge needs at least two segments, got %d", len(segmentIDs))
	}

	wanted := make(map[string]bool, len(segmentIDs))
	for _, id := range segmentIDs {
		if indexOf(segments, id) < 0 {
			return nil, Segment{}, fmt.Errorf("segment %s not found", id)
		}
		wanted[id] = true
	}
	if len(wanted) < 2 {
		return nil, Segment{}, fmt.Errorf("merge needs at least two distinct segments")
	}

	ordered := Sort(segments)
	parts := make([]Segment, 0, len(wanted))
	rest := make([]Segment, 0, len(ordered))
	for _, s := range ordered {
		if wanted[s.ID] {
			parts = append(parts, s)
		} else {
			rest = append(rest, s)
		}
	}

	for _, p := range parts[1:] {
		if p.PageID != parts[0].PageID {
			return nil, Segment{}, fmt.Errorf("cannot merge segments from pages %s and %s", parts[0].PageID, p.PageID)
		}
	}

	merged := mergeSegments(ids.Merged(), parts)
	return Sort(append(rest, merged)), merged, nil
}

func indexOf(segments []Segment, id string) int {
	for i, s := range segments {
		if s.ID == id {
			return i
		}
	}
	return -1
}
