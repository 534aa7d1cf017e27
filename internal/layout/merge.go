package layout

import "sort"

// SemanticMergeDistance is the centroid distance under which two regions
// sharing a topic are merged.
const SemanticMergeDistance = 200.0

type regionCluster struct {
	region     LayoutRegion
	firstIndex int
}

// MergeSemanticRegions merges regions that share a non-empty topic. Each
// topic group is ordered by mutual centroid distance and adjacent pairs
// closer than SemanticMergeDistance are merged. Merging repeats until no
// adjacent pair in a topic group is within range.
//
// The input slice and its regions are left untouched; a merged region takes
// the place of its earliest member in the original order.
func MergeSemanticRegions(regions []LayoutRegion) []LayoutRegion {
	groups := make(map[string][]regionCluster)
	var topics []string

	for i, r := range regions {
		if r.Topic == "" {
			continue
		}
		if _, ok := groups[r.Topic]; !ok {
			topics = append(topics, r.Topic)
		}
		groups[r.Topic] = append(groups[r.Topic], regionCluster{region: cloneRegion(r), firstIndex: i})
	}

	// original index -> merged region that should be emitted there
	emitAt := make(map[int]LayoutRegion)
	consumed := make(map[int]bool)

	for _, topic := range topics {
		clusters := mergeTopicGroup(groups[topic])
		for _, c := range clusters {
			emitAt[c.firstIndex] = c.region
		}
		for _, c := range groups[topic] {
			consumed[c.firstIndex] = true
		}
	}

	out := make([]LayoutRegion, 0, len(regions))
	for i, r := range regions {
		if !consumed[i] {
			out = append(out, cloneRegion(r))
			continue
		}
		if merged, ok := emitAt[i]; ok {
			out = append(out, merged)
		}
	}
	return out
}

func mergeTopicGroup(group []regionCluster) []regionCluster {
	clusters := append([]regionCluster(nil), group...)

	for {
		chain := chainByDistance(clusters)
		merged := false
		for i := 0; i+1 < len(chain); i++ {
			a, b := chain[i], chain[i+1]
			if CentroidDistance(a.region.Box, b.region.Box) >= SemanticMergeDistance {
				continue
			}
			chain[i] = mergeClusters(a, b)
			chain = append(chain[:i+1], chain[i+2:]...)
			merged = true
			break
		}
		clusters = chain
		if !merged {
			return clusters
		}
	}
}

// chainByDistance orders clusters by mutual centroid distance: starting from
// the earliest region, each next cluster is the nearest one not yet placed.
func chainByDistance(clusters []regionCluster) []regionCluster {
	rest := append([]regionCluster(nil), clusters...)
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].firstIndex < rest[j].firstIndex })

	chain := make([]regionCluster, 0, len(rest))
	for len(rest) > 0 {
		next := 0
		if len(chain) > 0 {
			last := chain[len(chain)-1].region.Box
			best := CentroidDistance(last, rest[0].region.Box)
			for i := 1; i < len(rest); i++ {
				if d := CentroidDistance(last, rest[i].region.Box); d < best {
					best, next = d, i
				}
			}
		}
		chain = append(chain, rest[next])
		rest = append(rest[:next], rest[next+1:]...)
	}
	return chain
}

// mergeClusters keeps the id, type and fragment order of the earlier member.
func mergeClusters(a, b regionCluster) regionCluster {
	if b.firstIndex < a.firstIndex {
		a, b = b, a
	}
	r := LayoutRegion{
		ID:              a.region.ID,
		Type:            a.region.Type,
		Box:             Union(a.region.Box, b.region.Box),
		Topic:           a.region.Topic,
		SemanticContext: "Merged semantic group: " + a.region.Topic,
		FragmentIDs:     unionIDs(a.region.FragmentIDs, b.region.FragmentIDs),
	}
	return regionCluster{region: r, firstIndex: a.firstIndex}
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, ids := range [][]string{a, b} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func cloneRegion(r LayoutRegion) LayoutRegion {
	r.FragmentIDs = append([]string(nil), r.FragmentIDs...)
	return r
}
