/**
 * Document Processor for the Segmentation Worker
 *
 * Orchestrates one job end to end:
 * - load the upload (buffer or URL) and reject invalid input up front
 * - visual variant: fragments, region analysis, segments, optimisation
 * - glossary variant: text, document context, do-not-translate terms
 * - job status and the finished payload are handed to the ResultStore
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/segment-worker/internal/analysis"
	"github.com/adverant/nexus/segment-worker/internal/clients"
	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
	"github.com/adverant/nexus/segment-worker/internal/extract"
	"github.com/adverant/nexus/segment-worker/internal/glossary"
	"github.com/adverant/nexus/segment-worker/internal/logging"
	"github.com/adverant/nexus/segment-worker/internal/storage"
)

// Job statuses written to the ResultStore
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// ResultStore receives job status changes and finished payloads.
// *storage.StorageManager implements it.
type ResultStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	StoreResult(ctx context.Context, result *storage.AnalysisResult) error
}

// TermIndexFactory opens a fresh term index for one glossary job
type TermIndexFactory func(ctx context.Context, jobID string) (glossary.TermIndex, error)

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	MaxFileSize            int64
	Timeout                time.Duration
	SlideImageFormat       string
	SlideImageMaxDimension int
	ContextSampleChars     int
	SimilarityThreshold    float32

	Reasoner   clients.Reasoner   // nil: every slide falls back, glossary jobs fail
	Extractor  *extract.Extractor // required
	Store      ResultStore        // nil: nothing is persisted
	TermIndex  TermIndexFactory   // nil: exact de-duplication only
	HTTPClient *http.Client       // used for FileURL downloads
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID           string
	FileName        string
	FileURL         string
	FileBuffer      []byte
	FileSize        int64
	Variant         string
	SourceLanguage  string
	TargetLanguages []string
	Metadata        map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	JobID            string
	Variant          extract.Variant
	Visual           *VisualResult
	Review           *ReviewSession
	Glossary         *glossary.Result
	FallbackSlides   []string
	ProcessingTimeMs int64
}

// Payload returns the JSON-ready result for the job's variant.
func (r *ProcessResult) Payload() interface{} {
	if r.Variant == extract.VariantGlossary {
		return r.Glossary
	}
	return r.Visual
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config    *ProcessorConfig
	extractor *extract.Extractor
	analyzer  *analysis.RegionAnalyzer
	store     ResultStore
	http      *http.Client
	logger    *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	logger := logging.NewLogger("DocumentProcessor")
	if cfg.Reasoner == nil {
		logger.Warn("No reasoning service configured. Slides will use classifier fallback and glossary jobs will fail.")
	} else {
		logger.Info("Reasoning service configured", "backend", cfg.Reasoner.Name())
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	return &DocumentProcessor{
		config:    cfg,
		extractor: cfg.Extractor,
		analyzer:  analysis.NewRegionAnalyzer(cfg.Reasoner),
		store:     cfg.Store,
		http:      httpClient,
		logger:    logger,
	}, nil
}

// ResolveVariant returns the requested variant, or infers one from the file
// extension when the request leaves it empty.
func ResolveVariant(requested, fileName string) (extract.Variant, bool) {
	if strings.TrimSpace(requested) != "" {
		return extract.ParseVariant(requested)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, e := range extract.AllowedExtensions[extract.VariantGlossary] {
		if e == ext {
			return extract.VariantGlossary, true
		}
	}
	return extract.VariantVisual, true
}

// ProcessDocument processes a document through the pipeline for its variant.
// Any failure is returned as a single *errors.ProcessingError with no partial
// result.
func (dp *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	log := dp.logger.With("jobId", req.JobID)

	if dp.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dp.config.Timeout)
		defer cancel()
	}

	variant, ok := ResolveVariant(req.Variant, req.FileName)
	if !ok {
		err := extract.ValidateUpload(req.JobID, req.FileName, nil, extract.Variant(req.Variant), dp.config.MaxFileSize)
		return nil, dp.fail(ctx, log, req, variant, start, err)
	}

	log.Info("Starting document processing", "fileName", req.FileName, "variant", variant)
	dp.updateStatus(ctx, log, req, variant, StatusProcessing, "upload", nil)

	data, err := dp.loadFile(ctx, log, req)
	if err != nil {
		return nil, dp.fail(ctx, log, req, variant, start, apperrors.NewExtractionFailedError(req.JobID, req.FileName, err))
	}

	if err := extract.ValidateUpload(req.JobID, req.FileName, data, variant, dp.config.MaxFileSize); err != nil {
		return nil, dp.fail(ctx, log, req, variant, start, err)
	}

	result := &ProcessResult{JobID: req.JobID, Variant: variant}

	switch variant {
	case extract.VariantGlossary:
		result.Glossary, err = dp.processGlossary(ctx, log, req, data)
	default:
		var run *visualRun
		run, err = dp.processVisual(ctx, log, req, data)
		if err == nil {
			result.Visual = run.result
			result.FallbackSlides = run.fallbackSlides
			result.Review = NewReviewSession(req.JobID, run.result, run.ids)
		}
	}
	if err != nil {
		return nil, dp.fail(ctx, log, req, variant, start, err)
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	if err := dp.persist(ctx, req, result); err != nil {
		return nil, dp.fail(ctx, log, req, variant, start, apperrors.NewStorageFailedError(req.JobID, err))
	}

	log.Info("Document processing complete",
		"variant", variant,
		"processingTimeMs", result.ProcessingTimeMs,
		"fallbackSlides", len(result.FallbackSlides))

	return result, nil
}

// persist stores the payload and marks the job completed.
func (dp *DocumentProcessor) persist(ctx context.Context, req *ProcessRequest, result *ProcessResult) error {
	if dp.store == nil {
		return nil
	}

	record := &storage.AnalysisResult{
		JobID:    req.JobID,
		Variant:  string(result.Variant),
		FileName: req.FileName,
		Payload:  result.Payload(),
	}
	stage := string(StateReadyForReview)
	if result.Visual != nil {
		record.SlideCount = result.Visual.Analysis.TotalSlides
		record.SegmentCount = len(result.Visual.Segments)
	}
	if result.Glossary != nil {
		record.TermCount = len(result.Glossary.Terms)
		stage = string(glossary.StateDone)
	}

	if err := dp.store.StoreResult(ctx, record); err != nil {
		return err
	}

	metadata := map[string]interface{}{
		"slideCount":   record.SlideCount,
		"segmentCount": record.SegmentCount,
		"termCount":    record.TermCount,
	}
	if len(result.FallbackSlides) > 0 {
		metadata["fallbackSlides"] = result.FallbackSlides
	}

	return dp.store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:            req.JobID,
		Variant:          string(result.Variant),
		FileName:         req.FileName,
		Languages:        jobLanguages(req),
		Status:           StatusCompleted,
		Stage:            stage,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Metadata:         metadata,
	})
}

// fail converts err into a ProcessingError, records it, and returns it.
func (dp *DocumentProcessor) fail(ctx context.Context, log *logging.Logger, req *ProcessRequest, variant extract.Variant, start time.Time, err error) error {
	var perr *apperrors.ProcessingError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		perr = apperrors.NewProcessingTimeoutError(req.JobID, dp.config.Timeout, err)
	case !errors.As(err, &perr):
		perr = apperrors.NewExtractionFailedError(req.JobID, req.FileName, err)
	}

	log.Error("Document processing failed",
		"code", perr.Code,
		"error", perr.Error(),
		"inputError", apperrors.IsInputError(perr))

	// The job context may already be done; the failure still has to land.
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if dp.store != nil {
		update := &storage.JobUpdate{
			JobID:            req.JobID,
			Variant:          string(variant),
			FileName:         req.FileName,
			Languages:        jobLanguages(req),
			Status:           StatusFailed,
			Stage:            StatusFailed,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			ErrorCode:        string(perr.Code),
			ErrorMessage:     perr.Message,
			Metadata:         perr.ToMap(),
		}
		if err := dp.store.UpdateJobStatus(statusCtx, update); err != nil {
			log.Warn("Failed to record job failure", "error", err)
		}
	}

	return perr
}

// updateStatus records a stage transition. Status writes are best effort;
// a lost progress update must not fail the job.
func (dp *DocumentProcessor) updateStatus(ctx context.Context, log *logging.Logger, req *ProcessRequest, variant extract.Variant, status, stage string, metadata map[string]interface{}) {
	log.Debug("Stage transition", "stage", stage)
	if dp.store == nil {
		return
	}

	err := dp.store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:     req.JobID,
		Variant:   string(variant),
		FileName:  req.FileName,
		Languages: jobLanguages(req),
		Status:    status,
		Stage:     stage,
		Metadata:  metadata,
	})
	if err != nil {
		log.Warn("Failed to update job status", "stage", stage, "error", err)
	}
}

// jobLanguages lists the source language first, then the targets.
func jobLanguages(req *ProcessRequest) []string {
	var langs []string
	if req.SourceLanguage != "" {
		langs = append(langs, req.SourceLanguage)
	}
	for _, l := range req.TargetLanguages {
		if l != "" && l != req.SourceLanguage {
			langs = append(langs, l)
		}
	}
	return langs
}
