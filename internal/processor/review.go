package processor

import (
	"fmt"
	"sync"

	"github.com/adverant/nexus/segment-worker/internal/segment"
)

// ReviewSession holds a visual result while it sits in ready-for-review.
// Edits loop in that state until Export moves the job to exported.
type ReviewSession struct {
	mu     sync.Mutex
	jobID  string
	ids    *segment.IDGenerator
	result *VisualResult
	state  VisualState
}

// NewReviewSession starts a review over result. ids must be the generator
// of the run that produced result so new ids cannot collide.
func NewReviewSession(jobID string, result *VisualResult, ids *segment.IDGenerator) *ReviewSession {
	if ids == nil {
		ids = segment.NewIDGenerator()
	}
	return &ReviewSession{
		jobID:  jobID,
		ids:    ids,
		result: result,
		state:  StateReadyForReview,
	}
}

// State returns the current visual state.
func (r *ReviewSession) State() VisualState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Segments returns a copy of the current segment list.
func (r *ReviewSession) Segments() []segment.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]segment.Segment(nil), r.result.Segments...)
}

func (r *ReviewSession) editable() error {
	if r.state != StateReadyForReview {
		return fmt.Errorf("job %s is %s, segments can no longer be edited", r.jobID, r.state)
	}
	return nil
}

// Add inserts a reviewer-created segment and returns it with its final id.
func (r *ReviewSession) Add(s segment.Segment) (segment.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.editable(); err != nil {
		return segment.Segment{}, err
	}

	segs, added, err := segment.AddSegment(r.ids, r.result.Segments, s)
	if err != nil {
		return segment.Segment{}, err
	}
	r.result.Segments = segs
	return added, nil
}

// Remove drops a segment by id.
func (r *ReviewSession) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.editable(); err != nil {
		return err
	}

	segs, ok := segment.RemoveSegment(r.result.Segments, id)
	if !ok {
		return fmt.Errorf("segment %s not found", id)
	}
	r.result.Segments = segs
	return nil
}

// Merge joins segments of one page into a single segment.
func (r *ReviewSession) Merge(ids []string) (segment.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.editable(); err != nil {
		return segment.Segment{}, err
	}

	segs, merged, err := segment.MergeSegments(r.ids, r.result.Segments, ids)
	if err != nil {
		return segment.Segment{}, err
	}
	r.result.Segments = segs
	return merged, nil
}

// Export closes the review and returns the final payload. Calling it again
// returns the same payload.
func (r *ReviewSession) Export() *VisualResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateExported

	out := *r.result
	out.Segments = append([]segment.Segment(nil), r.result.Segments...)
	return &out
}
