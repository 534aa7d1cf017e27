package segment

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator hands out segment ids for a single processing run. Each run
// owns its generator, so concurrent documents never share a counter.
type IDGenerator struct {
	counter atomic.Uint64
}

// NewIDGenerator returns a generator starting at 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

func (g *IDGenerator) next() uint64 {
	return g.counter.Add(1)
}

// Individual is the id of a fragment's segment inside a region.
func (g *IDGenerator) Individual(pageID, regionID string, index int) string {
	return fmt.Sprintf("seg-%s-%s-%d-%d", pageID, regionID, index, g.next())
}

// Combined is the id of a region's combined segment.
func (g *IDGenerator) Combined(pageID, regionID string) string {
	return fmt.Sprintf("seg-%s-%s-combined-%d", pageID, regionID, g.next())
}

// Standalone is the id of a fragment's classifier-based segment.
func (g *IDGenerator) Standalone(pageID string, index int) string {
	return fmt.Sprintf("seg-%s-standalone-%d-%d", pageID, index, g.next())
}

// Merged is the id of a segment produced by merging others.
func (g *IDGenerator) Merged() string {
	return fmt.Sprintf("merged-%d", g.next())
}

// Manual is the id of a segment added during review.
func (g *IDGenerator) Manual(pageID string) string {
	return fmt.Sprintf("seg-%s-manual-%d", pageID, g.next())
}
