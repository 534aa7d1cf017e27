/**
 * Region Analyzer for the segmentation worker
 *
 * Asks the reasoning service to group a slide's fragments into typed,
 * topic-labelled regions. The slide's placeholder image is sent alongside
 * the fragment list when the backend accepts images.
 *
 * Any failure yields a fallback outcome built from the local classifier,
 * so one slide can never abort the document.
 */

package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/segment-worker/internal/clients"
	"github.com/adverant/nexus/segment-worker/internal/extract"
	"github.com/adverant/nexus/segment-worker/internal/layout"
	"github.com/adverant/nexus/segment-worker/internal/logging"
)

// OutcomeKind tags how a slide's regions were produced
type OutcomeKind string

const (
	OutcomeOK       OutcomeKind = "ok"
	OutcomeFallback OutcomeKind = "fallback"
)

// Outcome is the result of analysing one slide
type Outcome struct {
	Kind           OutcomeKind
	Regions        []layout.LayoutRegion
	OverallContext string
	Reason         string // why the fallback was taken
	Duration       time.Duration
}

// Fallback reports whether the regions came from the local classifier.
func (o Outcome) Fallback() bool {
	return o.Kind == OutcomeFallback
}

// RegionAnalyzer performs region analysis for one slide at a time
type RegionAnalyzer struct {
	reasoner clients.Reasoner
	logger   *logging.Logger
}

// NewRegionAnalyzer creates an analyzer. A nil reasoner makes every
// slide take the fallback path.
func NewRegionAnalyzer(reasoner clients.Reasoner) *RegionAnalyzer {
	return &RegionAnalyzer{
		reasoner: reasoner,
		logger:   logging.NewLogger("RegionAnalyzer"),
	}
}

// regionResponse is the JSON shape requested from the reasoning service
type regionResponse struct {
	OverallContext string         `json:"overallContext"`
	Regions        []regionAnswer `json:"regions"`
}

type regionAnswer struct {
	ID              string             `json:"id"`
	Type            string             `json:"type"`
	Box             layout.BoundingBox `json:"boundingBox"`
	Topic           string             `json:"topic"`
	SemanticContext string             `json:"semanticContext"`
	Elements        []string           `json:"elements"`
}

// Analyze groups slide's fragments into regions.
func (a *RegionAnalyzer) Analyze(ctx context.Context, slide *extract.Slide, image []byte) Outcome {
	start := time.Now()

	if len(slide.Fragments) == 0 {
		return Outcome{Kind: OutcomeOK, Duration: time.Since(start)}
	}

	if a.reasoner == nil {
		return a.fallback(slide, "region analysis service not configured", start)
	}

	req := &clients.ReasoningRequest{
		System: systemPrompt,
		Prompt: buildPrompt(slide),
	}
	if len(image) > 0 {
		req.Images = [][]byte{image}
	}

	var resp regionResponse
	if err := clients.GenerateJSON(ctx, a.reasoner, req, &resp); err != nil {
		return a.fallback(slide, err.Error(), start)
	}

	regions := convertRegions(resp.Regions, slide.Fragments)
	if len(regions) == 0 {
		return a.fallback(slide, "response contained no usable regions", start)
	}

	a.logger.Debug("Region analysis complete",
		"slideId", slide.ID,
		"regions", len(regions),
		"model", a.reasoner.Name(),
		"durationMs", time.Since(start).Milliseconds())

	return Outcome{
		Kind:           OutcomeOK,
		Regions:        regions,
		OverallContext: strings.TrimSpace(resp.OverallContext),
		Duration:       time.Since(start),
	}
}

func (a *RegionAnalyzer) fallback(slide *extract.Slide, reason string, start time.Time) Outcome {
	a.logger.Warn("Region analysis unavailable, using classifier fallback",
		"slideId", slide.ID,
		"reason", reason)

	return Outcome{
		Kind:     OutcomeFallback,
		Regions:  layout.SynthesizeRegions(slide.Fragments),
		Reason:   reason,
		Duration: time.Since(start),
	}
}

// convertRegions validates the model's regions against the real fragments.
// Unknown fragment ids are dropped, unknown types become other, and a
// missing box is rebuilt from the member fragments.
func convertRegions(answers []regionAnswer, fragments []layout.TextFragment) []layout.LayoutRegion {
	byID := make(map[string]layout.TextFragment, len(fragments))
	for _, f := range fragments {
		byID[f.ID] = f
	}

	seen := make(map[string]bool, len(answers))
	regions := make([]layout.LayoutRegion, 0, len(answers))
	for i, ans := range answers {
		var members []string
		var boxes []layout.BoundingBox
		for _, id := range ans.Elements {
			if f, ok := byID[id]; ok {
				members = append(members, id)
				boxes = append(boxes, f.Box)
			}
		}

		box := ans.Box
		if box.Width < 0 {
			box.Width = 0
		}
		if box.Height < 0 {
			box.Height = 0
		}
		if box.Area() == 0 {
			if len(boxes) == 0 {
				continue
			}
			box = layout.Union(boxes...)
		}

		id := strings.TrimSpace(ans.ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("region-%d", i+1)
		}
		seen[id] = true

		regions = append(regions, layout.LayoutRegion{
			ID:              id,
			Type:            layout.ParseRegionType(ans.Type),
			Box:             box,
			Topic:           strings.TrimSpace(ans.Topic),
			SemanticContext: strings.TrimSpace(ans.SemanticContext),
			FragmentIDs:     members,
		})
	}
	return regions
}

const systemPrompt = `You analyse the visual layout of presentation slides for translators.
Group the slide's text elements into regions that belong together visually and semantically.
Answer with JSON only.`

type promptElement struct {
	ID   string             `json:"id"`
	Text string             `json:"text"`
	Box  layout.BoundingBox `json:"boundingBox"`
	Size float64            `json:"fontSize,omitempty"`
	Bold bool               `json:"isBold,omitempty"`
}

func buildPrompt(slide *extract.Slide) string {
	elements := make([]promptElement, 0, len(slide.Fragments))
	for _, f := range slide.Fragments {
		elements = append(elements, promptElement{
			ID:   f.ID,
			Text: f.Text,
			Box:  f.Box,
			Size: f.Style.FontSize,
			Bold: f.Style.Bold,
		})
	}
	listing, _ := json.Marshal(elements)

	var b strings.Builder
	fmt.Fprintf(&b, "Slide %s is %.0fx%.0f pixels and contains these text elements:\n", slide.ID, slide.Width, slide.Height)
	b.Write(listing)
	b.WriteString(`

Return an object of this form:
{
  "overallContext": "one sentence on what the slide is about",
  "regions": [
    {
      "id": "region-1",
      "type": "title_group | body_text | caption | bullet_list | header_footer | callout | navigation | other",
      "boundingBox": {"x": 0, "y": 0, "width": 0, "height": 0},
      "topic": "short topic label shared by regions about the same subject",
      "semanticContext": "what this region says",
      "elements": ["ids of the text elements in this region"]
    }
  ]
}
Every element id must come from the list above.`)
	return b.String()
}
