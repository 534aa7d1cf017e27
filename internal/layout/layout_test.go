package layout

import (
	"math"
	"reflect"
	"testing"
)

func box(x, y, w, h float64) BoundingBox {
	return BoundingBox{X: x, Y: y, Width: w, Height: h}
}

func TestUnionContainsEveryMember(t *testing.T) {
	cases := [][]BoundingBox{
		{box(0, 0, 10, 10)},
		{box(10, 10, 5, 5), box(0, 20, 40, 2)},
		{box(100, 50, 600, 30), box(100, 90, 600, 30), box(50, 400, 10, 0)},
		{box(3.5, 7.25, 0, 0), box(1, 1, 1, 1)},
	}

	for i, boxes := range cases {
		u := Union(boxes...)
		for _, b := range boxes {
			if !IsContained(b, u) {
				t.Errorf("case %d: %+v not contained in union %+v", i, b, u)
			}
		}
	}
}

func TestUnionOfNothingIsZeroBox(t *testing.T) {
	if got := Union(); got != (BoundingBox{}) {
		t.Errorf("Union() = %+v, want zero box", got)
	}
}

func TestUnionIsMinimal(t *testing.T) {
	got := Union(box(100, 50, 600, 30), box(100, 90, 600, 30))
	want := box(100, 50, 600, 70)
	if got != want {
		t.Errorf("Union = %+v, want %+v", got, want)
	}
}

func TestOverlapArea(t *testing.T) {
	tests := []struct {
		name string
		a, b BoundingBox
		want float64
	}{
		{"disjoint", box(0, 0, 10, 10), box(20, 20, 5, 5), 0},
		{"touching edges", box(0, 0, 10, 10), box(10, 0, 10, 10), 0},
		{"diagonal apart", box(0, 0, 10, 10), box(11, 11, 10, 10), 0},
		{"partial", box(0, 0, 10, 10), box(5, 5, 10, 10), 25},
		{"contained", box(0, 0, 100, 100), box(10, 10, 20, 20), 400},
		{"zero width", box(5, 0, 0, 10), box(0, 0, 10, 10), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := OverlapArea(tc.a, tc.b); got != tc.want {
				t.Errorf("OverlapArea = %v, want %v", got, tc.want)
			}
			if got := OverlapArea(tc.b, tc.a); got != tc.want {
				t.Errorf("OverlapArea (swapped) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsContainedAllowsTouchingEdges(t *testing.T) {
	outer := box(0, 0, 100, 100)
	if !IsContained(box(0, 0, 100, 100), outer) {
		t.Error("a box should contain itself")
	}
	if IsContained(box(90, 90, 11, 5), outer) {
		t.Error("box spilling over the right edge should not be contained")
	}
}

func TestCentroidDistance(t *testing.T) {
	got := CentroidDistance(box(0, 0, 10, 10), box(30, 40, 10, 10))
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("CentroidDistance = %v, want 50", got)
	}
}

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name     string
		fragment TextFragment
		want     RegionType
	}{
		{
			name:     "large bold short heading",
			fragment: TextFragment{Text: "Q3 Results", Style: StyleHints{FontSize: 24, Bold: true}},
			want:     RegionTitleGroup,
		},
		{
			name:     "bullet marker beats caption and body",
			fragment: TextFragment{Text: "• Revenue grew 12%", Style: StyleHints{FontSize: 14}},
			want:     RegionBulletList,
		},
		{
			name:     "leading dash",
			fragment: TextFragment{Text: "- shipped on time", Style: StyleHints{FontSize: 12}},
			want:     RegionBulletList,
		},
		{
			name:     "bold sentence with a period is not a title",
			fragment: TextFragment{Text: "Revenue grew.", Style: StyleHints{Bold: true}},
			want:     RegionBodyText,
		},
		{
			name:     "caption mentions a figure",
			fragment: TextFragment{Text: "Figure 2: quarterly revenue.", Style: StyleHints{FontSize: 10}},
			want:     RegionCaption,
		},
		{
			name:     "caption mentions a table in any case",
			fragment: TextFragment{Text: "See TABLE 4 for details.", Style: StyleHints{FontSize: 10}},
			want:     RegionCaption,
		},
		{
			name:     "plain body",
			fragment: TextFragment{Text: "Our revenue grew in every region this quarter.", Style: StyleHints{FontSize: 14}},
			want:     RegionBodyText,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.fragment); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.fragment.Text, got, tc.want)
			}
		})
	}
}

func TestParseRegionType(t *testing.T) {
	tests := map[string]RegionType{
		"title_group":   RegionTitleGroup,
		"Bullet List":   RegionBulletList,
		"header-footer": RegionHeaderFooter,
		"heading":       RegionTitleGroup,
		"paragraph":     RegionBodyText,
		"diagram":       RegionOther,
		"":              RegionOther,
	}
	for in, want := range tests {
		if got := ParseRegionType(in); got != want {
			t.Errorf("ParseRegionType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestAssignRegionWithoutOverlapReturnsNothing(t *testing.T) {
	f := TextFragment{ID: "f1", Text: "Quarterly numbers", Box: box(0, 0, 100, 20)}
	regions := []LayoutRegion{
		{ID: "r1", Type: RegionBodyText, Box: box(500, 500, 100, 100), Topic: "finance"},
		{ID: "r2", Type: RegionCallout, Box: box(200, 0, 50, 50)},
	}

	if r, ok := AssignRegion(f, regions); ok {
		t.Fatalf("expected no region, got %s", r.ID)
	}
}

func TestAssignRegionPrefersContainment(t *testing.T) {
	f := TextFragment{ID: "f1", Text: "Overview", Box: box(100, 50, 100, 30)}
	regions := []LayoutRegion{
		{ID: "partial", Box: box(180, 50, 100, 30)},
		{ID: "container", Box: box(0, 0, 400, 200)},
	}

	r, ok := AssignRegion(f, regions)
	if !ok || r.ID != "container" {
		t.Fatalf("expected container, got %q (ok=%v)", r.ID, ok)
	}
}

func TestAssignRegionTieGoesToFirst(t *testing.T) {
	f := TextFragment{ID: "f1", Text: "x", Box: box(0, 0, 10, 10)}
	regions := []LayoutRegion{
		{ID: "a", Box: box(0, 0, 10, 10)},
		{ID: "b", Box: box(0, 0, 10, 10)},
	}

	r, ok := AssignRegion(f, regions)
	if !ok || r.ID != "a" {
		t.Fatalf("expected first region a, got %q", r.ID)
	}
}

func TestAssignRegionByTopicAlone(t *testing.T) {
	f := TextFragment{ID: "f1", Text: "Revenue by region", Box: box(0, 0, 10, 10)}
	regions := []LayoutRegion{
		{ID: "far", Box: box(900, 900, 10, 10), Topic: "revenue"},
	}

	r, ok := AssignRegion(f, regions)
	if !ok || r.ID != "far" {
		t.Fatalf("expected lexical match to assign region, got %q (ok=%v)", r.ID, ok)
	}
}

func TestSemanticSimilarity(t *testing.T) {
	tests := []struct {
		name, text, topic, context string
		want                       float64
	}{
		{"no tokens", "anything", "", "", 0},
		{"full match", "Quarterly revenue growth", "revenue-growth", "", 0.2},
		{"half match", "Revenue", "revenue_costs", "", 0.1},
		{"short tokens never match", "a to b", "a to", "", 0},
		{"context counts", "Intro slide", "intro", "opening remarks", 0.2 / 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SemanticSimilarity(tc.text, tc.topic, tc.context)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("SemanticSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMergeSemanticRegions(t *testing.T) {
	input := []LayoutRegion{
		{ID: "a", Type: RegionBodyText, Box: box(0, 0, 100, 50), Topic: "revenue", FragmentIDs: []string{"f1"}},
		{ID: "solo", Type: RegionCallout, Box: box(500, 0, 50, 50), FragmentIDs: []string{"f2"}},
		{ID: "b", Type: RegionBodyText, Box: box(0, 100, 100, 50), Topic: "revenue", FragmentIDs: []string{"f3"}},
		{ID: "far", Type: RegionBodyText, Box: box(0, 900, 100, 50), Topic: "revenue", FragmentIDs: []string{"f4"}},
	}
	snapshot := make([]LayoutRegion, len(input))
	for i, r := range input {
		snapshot[i] = cloneRegion(r)
	}

	got := MergeSemanticRegions(input)

	if len(got) != 3 {
		t.Fatalf("expected 3 regions, got %d: %+v", len(got), got)
	}
	merged := got[0]
	if merged.ID != "a" {
		t.Errorf("merged region should keep id a, got %s", merged.ID)
	}
	if merged.Box != box(0, 0, 100, 150) {
		t.Errorf("merged box = %+v", merged.Box)
	}
	if !reflect.DeepEqual(merged.FragmentIDs, []string{"f1", "f3"}) {
		t.Errorf("merged fragments = %v", merged.FragmentIDs)
	}
	if merged.SemanticContext != "Merged semantic group: revenue" {
		t.Errorf("merged context = %q", merged.SemanticContext)
	}
	if got[1].ID != "solo" || got[2].ID != "far" {
		t.Errorf("unexpected order: %s, %s", got[1].ID, got[2].ID)
	}

	if !reflect.DeepEqual(input, snapshot) {
		t.Error("MergeSemanticRegions mutated its input")
	}
}

func TestMergeSemanticRegionsIsIterative(t *testing.T) {
	// a-b and b-c are close; after a+b merge the new centroid is still close to c.
	input := []LayoutRegion{
		{ID: "a", Box: box(0, 0, 100, 40), Topic: "t", FragmentIDs: []string{"1"}},
		{ID: "b", Box: box(0, 150, 100, 40), Topic: "t", FragmentIDs: []string{"2"}},
		{ID: "c", Box: box(0, 260, 100, 40), Topic: "t", FragmentIDs: []string{"3"}},
	}

	got := MergeSemanticRegions(input)
	if len(got) != 1 {
		t.Fatalf("expected one merged region, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].FragmentIDs, []string{"1", "2", "3"}) {
		t.Errorf("fragments = %v", got[0].FragmentIDs)
	}
	if got[0].Box != box(0, 0, 100, 300) {
		t.Errorf("box = %+v", got[0].Box)
	}
}

func TestMergeSemanticRegionsAcrossColumns(t *testing.T) {
	// The right column sits between the two left boxes in y, but the left
	// boxes are each other's nearest neighbour.
	input := []LayoutRegion{
		{ID: "left-top", Box: box(0, 100, 200, 40), Topic: "revenue", FragmentIDs: []string{"1"}},
		{ID: "right-top", Box: box(900, 105, 200, 40), Topic: "revenue", FragmentIDs: []string{"2"}},
		{ID: "left-below", Box: box(0, 180, 200, 40), Topic: "revenue", FragmentIDs: []string{"3"}},
	}

	got := MergeSemanticRegions(input)
	if len(got) != 2 {
		t.Fatalf("expected 2 regions, got %d: %+v", len(got), got)
	}
	if got[0].ID != "left-top" || !reflect.DeepEqual(got[0].FragmentIDs, []string{"1", "3"}) {
		t.Errorf("left column = %+v", got[0])
	}
	if got[0].Box != box(0, 100, 200, 120) {
		t.Errorf("left column box = %+v", got[0].Box)
	}
	if got[1].ID != "right-top" || len(got[1].FragmentIDs) != 1 {
		t.Errorf("right column = %+v", got[1])
	}
}

func TestMergeSemanticRegionsIgnoresEmptyTopic(t *testing.T) {
	input := []LayoutRegion{
		{ID: "a", Box: box(0, 0, 10, 10)},
		{ID: "b", Box: box(0, 5, 10, 10)},
	}
	if got := MergeSemanticRegions(input); len(got) != 2 {
		t.Fatalf("regions without topic must not merge, got %d", len(got))
	}
}

func TestSynthesizeRegions(t *testing.T) {
	fragments := []TextFragment{
		{ID: "t", Text: "Agenda", Box: box(10, 10, 200, 40), Style: StyleHints{FontSize: 32}},
		{ID: "b", Text: "• First point", Box: box(10, 80, 200, 20)},
	}

	regions := SynthesizeRegions(fragments)
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}
	if regions[0].Type != RegionTitleGroup || regions[1].Type != RegionBulletList {
		t.Errorf("types = %s, %s", regions[0].Type, regions[1].Type)
	}
	if regions[1].Box != fragments[1].Box || regions[1].FragmentIDs[0] != "b" {
		t.Errorf("region should mirror its fragment: %+v", regions[1])
	}
}
