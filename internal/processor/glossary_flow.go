package processor

import (
	"context"
	"strings"

	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
	"github.com/adverant/nexus/segment-worker/internal/extract"
	"github.com/adverant/nexus/segment-worker/internal/glossary"
	"github.com/adverant/nexus/segment-worker/internal/logging"
)

// processGlossary extracts plain text and runs the two-stage term pipeline.
func (dp *DocumentProcessor) processGlossary(ctx context.Context, log *logging.Logger, req *ProcessRequest, data []byte) (*glossary.Result, error) {
	text, err := dp.extractor.ExtractText(req.FileName, data)
	if err != nil {
		return nil, apperrors.NewExtractionFailedError(req.JobID, req.FileName, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewEmptyTextError(req.JobID, req.FileName)
	}
	log.Info("Text extracted", "chars", len([]rune(text)))

	var index glossary.TermIndex
	if dp.config.TermIndex != nil {
		idx, err := dp.config.TermIndex(ctx, req.JobID)
		if err != nil {
			log.Warn("Term index unavailable, near-duplicate terms will be kept", "error", err)
		} else {
			index = idx
			defer func() {
				closeCtx := context.WithoutCancel(ctx)
				if err := idx.Close(closeCtx); err != nil {
					log.Warn("Failed to close term index", "error", err)
				}
			}()
		}
	}

	pipeline := glossary.NewPipeline(glossary.PipelineConfig{
		Reasoner:            dp.config.Reasoner,
		SampleChars:         dp.config.ContextSampleChars,
		SimilarityThreshold: dp.config.SimilarityThreshold,
		OnStateChange: func(s glossary.State) {
			if s == glossary.StateFailed || s == glossary.StateDone {
				return
			}
			dp.updateStatus(ctx, log, req, extract.VariantGlossary, StatusProcessing, string(s), nil)
		},
	})

	return pipeline.Run(ctx, req.JobID, req.FileName, text, index)
}
