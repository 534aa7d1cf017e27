package layout

// SynthesizeRegions builds one region per fragment, typed by Classify.
// It stands in for external region analysis when that is unavailable.
func SynthesizeRegions(fragments []TextFragment) []LayoutRegion {
	regions := make([]LayoutRegion, 0, len(fragments))
	for _, f := range fragments {
		regions = append(regions, LayoutRegion{
			ID:              "fallback-" + f.ID,
			Type:            Classify(f),
			Box:             f.Box,
			SemanticContext: "Heuristic region",
			FragmentIDs:     []string{f.ID},
		})
	}
	return regions
}
