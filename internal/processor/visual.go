package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
	"github.com/adverant/nexus/segment-worker/internal/extract"
	"github.com/adverant/nexus/segment-worker/internal/layout"
	"github.com/adverant/nexus/segment-worker/internal/logging"
	"github.com/adverant/nexus/segment-worker/internal/render"
	"github.com/adverant/nexus/segment-worker/internal/segment"
)

// VisualState is a stage of the visual segmentation flow
type VisualState string

const (
	StateUpload           VisualState = "upload"
	StateExtractingLayout VisualState = "extracting-layout"
	StateRegionAnalysis   VisualState = "region-analysis"
	StateSegmentBuilding  VisualState = "segment-building"
	StateOptimizing       VisualState = "optimizing"
	StateReadyForReview   VisualState = "ready-for-review"
	StateExported         VisualState = "exported"
	StateFailed           VisualState = "failed"
)

// SlideAnalysis is the per-slide part of the visual payload
type SlideAnalysis struct {
	SlideID        string                `json:"slideId"`
	SlideImage     string                `json:"slideImage"`
	VisualContexts []layout.LayoutRegion `json:"visualContexts"`
	TextElements   []layout.TextFragment `json:"textElements"`
	OverallContext string                `json:"overallContext"`
}

// Analysis describes every slide of a visual upload
type Analysis struct {
	FileName          string          `json:"fileName"`
	Slides            []SlideAnalysis `json:"slides"`
	TotalSlides       int             `json:"totalSlides"`
	AnalysisTimestamp string          `json:"analysisTimestamp"`
}

// VisualResult is the payload of a visual job
type VisualResult struct {
	Analysis Analysis          `json:"analysis"`
	Segments []segment.Segment `json:"segments"`
}

type visualRun struct {
	result         *VisualResult
	ids            *segment.IDGenerator
	fallbackSlides []string
}

// processVisual runs extraction, per-slide region analysis, segment
// building and optimisation. A failing analysis call only affects its own
// slide, which falls back to the classifier.
func (dp *DocumentProcessor) processVisual(ctx context.Context, log *logging.Logger, req *ProcessRequest, data []byte) (*visualRun, error) {
	stage := func(s VisualState) {
		dp.updateStatus(ctx, log, req, extract.VariantVisual, StatusProcessing, string(s), nil)
	}

	stage(StateExtractingLayout)
	deck, err := dp.extractor.ExtractDeck(ctx, req.FileName, data)
	if err != nil {
		return nil, apperrors.NewExtractionFailedError(req.JobID, req.FileName, err)
	}
	if deck.FragmentCount() == 0 {
		return nil, apperrors.NewEmptyTextError(req.JobID, req.FileName)
	}
	log.Info("Layout extracted", "slides", len(deck.Slides), "fragments", deck.FragmentCount())

	stage(StateRegionAnalysis)
	run := &visualRun{ids: segment.NewIDGenerator()}
	slides := make([]SlideAnalysis, 0, len(deck.Slides))
	regionsBySlide := make([][]layout.LayoutRegion, 0, len(deck.Slides))

	for i := range deck.Slides {
		slide := &deck.Slides[i]
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("region analysis interrupted at %s: %w", slide.ID, err)
		}

		imageBytes, mimeType := dp.slideImage(log, slide, req.FileName, data)
		outcome := dp.analyzer.Analyze(ctx, slide, imageBytes)
		if outcome.Fallback() {
			run.fallbackSlides = append(run.fallbackSlides, slide.ID)
		}

		regions := layout.MergeSemanticRegions(outcome.Regions)
		regionsBySlide = append(regionsBySlide, regions)

		sa := SlideAnalysis{
			SlideID:        slide.ID,
			VisualContexts: regions,
			TextElements:   slide.Fragments,
			OverallContext: outcome.OverallContext,
		}
		if sa.VisualContexts == nil {
			sa.VisualContexts = []layout.LayoutRegion{}
		}
		if sa.TextElements == nil {
			sa.TextElements = []layout.TextFragment{}
		}
		if len(imageBytes) > 0 {
			sa.SlideImage = render.DataURL(imageBytes, mimeType)
		}
		slides = append(slides, sa)
	}

	stage(StateSegmentBuilding)
	var segments []segment.Segment
	for i, slide := range deck.Slides {
		segments = append(segments, segment.BuildSegments(run.ids, slide.ID, slide.Fragments, regionsBySlide[i])...)
	}

	stage(StateOptimizing)
	before := len(segments)
	segments = segment.Optimize(run.ids, segments)
	log.Info("Segments optimised", "before", before, "after", len(segments))

	run.result = &VisualResult{
		Analysis: Analysis{
			FileName:          req.FileName,
			Slides:            slides,
			TotalSlides:       len(slides),
			AnalysisTimestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Segments: segments,
	}
	return run, nil
}

// slideImage returns the picture sent with a slide: the upload itself for
// image files, otherwise a placeholder drawn from the fragment boxes.
func (dp *DocumentProcessor) slideImage(log *logging.Logger, slide *extract.Slide, fileName string, data []byte) ([]byte, string) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return data, extract.DetectMimeType(data, fileName)
	}

	img := render.Placeholder(slide.Fragments, int(slide.Width), int(slide.Height))
	encoded, mimeType, err := render.Encode(img, dp.config.SlideImageFormat, dp.config.SlideImageMaxDimension)
	if err != nil {
		log.Warn("Failed to render slide placeholder", "slideId", slide.ID, "error", err)
		return nil, ""
	}
	return encoded, mimeType
}
