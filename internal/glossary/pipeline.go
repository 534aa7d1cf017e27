/**
 * Glossary pipeline
 *
 * Two sequential calls to the reasoning service:
 *   1. infer a document context from the opening of the text
 *   2. extract do-not-translate terms from the full text, guided by 1
 *
 * Stage 1 failing stops the run; stage 2 is never attempted and no partial
 * term list is returned. Term ids and frequencies are assigned locally.
 */

package glossary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/adverant/nexus/segment-worker/internal/clients"
	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
	"github.com/adverant/nexus/segment-worker/internal/logging"
)

// State of one pipeline run
type State string

const (
	StateIdle              State = "idle"
	StateContextExtracting State = "context-extracting"
	StateTermExtracting    State = "term-extracting"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// DefaultSampleChars is how much of the document stage 1 sees
const DefaultSampleChars = 2000

// PipelineConfig configures a Pipeline
type PipelineConfig struct {
	Reasoner            clients.Reasoner
	SampleChars         int
	SimilarityThreshold float32           // near-duplicate cutoff for the term index
	OnStateChange       func(state State) // optional progress hook
}

// Pipeline runs context inference followed by term extraction
type Pipeline struct {
	reasoner    clients.Reasoner
	sampleChars int
	threshold   float32
	onState     func(State)
	logger      *logging.Logger
}

// NewPipeline creates a glossary pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	sample := cfg.SampleChars
	if sample <= 0 {
		sample = DefaultSampleChars
	}
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.92
	}
	return &Pipeline{
		reasoner:    cfg.Reasoner,
		sampleChars: sample,
		threshold:   threshold,
		onState:     cfg.OnStateChange,
		logger:      logging.NewLogger("GlossaryPipeline"),
	}
}

func (p *Pipeline) transition(s State) {
	if p.onState != nil {
		p.onState(s)
	}
}

// Run executes both stages over text. index may be nil, in which case
// only exact duplicates are removed.
func (p *Pipeline) Run(ctx context.Context, jobID, fileName, text string, index TermIndex) (*Result, error) {
	log := p.logger.With("jobId", jobID)
	p.transition(StateIdle)

	if strings.TrimSpace(text) == "" {
		p.transition(StateFailed)
		return nil, apperrors.NewEmptyTextError(jobID, fileName)
	}

	p.transition(StateContextExtracting)
	docCtx, err := p.InferContext(ctx, text)
	if err != nil {
		p.transition(StateFailed)
		log.Error("Context inference failed", "error", err)
		return nil, apperrors.NewContextInferenceError(jobID, err)
	}
	log.Info("Document context inferred", "domain", docCtx.Domain, "documentType", docCtx.DocumentType)

	p.transition(StateTermExtracting)
	terms, err := p.ExtractTerms(ctx, text, docCtx)
	if err != nil {
		p.transition(StateFailed)
		log.Error("Term extraction failed", "error", err)
		return nil, apperrors.NewTermExtractionError(jobID, err)
	}

	if index != nil {
		terms = p.collapseNearDuplicates(ctx, log, index, terms)
	}

	p.transition(StateDone)
	log.Info("Glossary extraction complete", "terms", len(terms))

	return &Result{Context: docCtx, Terms: terms}, nil
}

// InferContext asks for a document profile from the first sampleChars runes.
func (p *Pipeline) InferContext(ctx context.Context, text string) (*DocumentContext, error) {
	if p.reasoner == nil {
		return nil, fmt.Errorf("reasoning service not configured")
	}

	sample := text
	if runes := []rune(text); len(runes) > p.sampleChars {
		sample = string(runes[:p.sampleChars])
	}

	req := &clients.ReasoningRequest{
		System: contextSystemPrompt,
		Prompt: fmt.Sprintf(contextPrompt, sample),
	}

	var docCtx DocumentContext
	if err := clients.GenerateJSON(ctx, p.reasoner, req, &docCtx); err != nil {
		return nil, err
	}
	return &docCtx, nil
}

type termAnswer struct {
	Term       string `json:"term"`
	Category   string `json:"category"`
	Confidence string `json:"confidence"`
	Context    string `json:"context"`
}

// ExtractTerms asks for do-not-translate terms over the whole text and
// normalises the answer into Terms with local ids and frequencies.
func (p *Pipeline) ExtractTerms(ctx context.Context, text string, docCtx *DocumentContext) ([]Term, error) {
	if p.reasoner == nil {
		return nil, fmt.Errorf("reasoning service not configured")
	}

	profile, err := json.Marshal(docCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document context: %w", err)
	}

	req := &clients.ReasoningRequest{
		System: termsSystemPrompt,
		Prompt: fmt.Sprintf(termsPrompt, profile, text),
	}

	var raw json.RawMessage
	if err := clients.GenerateJSON(ctx, p.reasoner, req, &raw); err != nil {
		return nil, err
	}

	answers, err := decodeTermAnswers(raw)
	if err != nil {
		return nil, err
	}

	return normalizeTerms(answers, text), nil
}

// decodeTermAnswers accepts either {"terms": [...]} or a bare array.
func decodeTermAnswers(raw json.RawMessage) ([]termAnswer, error) {
	trimmed := bytes.TrimSpace(raw)
	var answers []termAnswer

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &answers); err != nil {
			return nil, fmt.Errorf("unexpected term list: %w", err)
		}
		return answers, nil
	}

	var wrapped struct {
		Terms *[]termAnswer `json:"terms"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected term list: %w", err)
	}
	if wrapped.Terms == nil {
		return nil, fmt.Errorf("response has no terms field")
	}
	return *wrapped.Terms, nil
}

func normalizeTerms(answers []termAnswer, text string) []Term {
	seen := make(map[string]bool, len(answers))
	terms := make([]Term, 0, len(answers))
	for _, a := range answers {
		name := strings.Join(strings.Fields(a.Term), " ")
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		terms = append(terms, Term{
			ID:         uuid.NewString(),
			Term:       name,
			Category:   ParseCategory(a.Category),
			Confidence: ParseConfidence(a.Confidence),
			Context:    strings.TrimSpace(a.Context),
			Frequency:  CountFrequency(text, name),
		})
	}
	return terms
}

// collapseNearDuplicates folds terms the index considers the same entity
// into the first one seen. Index failures leave the list as it is.
func (p *Pipeline) collapseNearDuplicates(ctx context.Context, log *logging.Logger, index TermIndex, terms []Term) []Term {
	kept := make([]Term, 0, len(terms))
	pos := make(map[string]int, len(terms))

	for _, t := range terms {
		id, sim, ok, err := index.Nearest(ctx, t.Term)
		if err != nil {
			log.Warn("Term index unavailable, keeping exact de-duplication only", "error", err)
			return terms
		}

		if ok && sim >= p.threshold {
			if i, found := pos[id]; found {
				k := &kept[i]
				k.Frequency += t.Frequency
				if t.Confidence.rank() > k.Confidence.rank() {
					k.Confidence = t.Confidence
				}
				log.Debug("Collapsed near-duplicate term", "term", t.Term, "into", k.Term, "similarity", sim)
				continue
			}
		}

		if err := index.Add(ctx, t.ID, t.Term); err != nil {
			log.Warn("Term index unavailable, keeping exact de-duplication only", "error", err)
			return terms
		}
		pos[t.ID] = len(kept)
		kept = append(kept, t)
	}
	return kept
}

const contextSystemPrompt = `You profile documents for professional translators. Answer with JSON only.`

const contextPrompt = `Read the opening of this document and describe it.

Return an object with these string fields: organization, authorRole, audience,
domain, documentType, region, formality, technicalDepth, businessStage,
regulatoryContext, plus potentialTerms: a list of names or jargon that look
like they must not be translated.

Document opening:
"""
%s
"""`

const termsSystemPrompt = `You build do-not-translate glossaries for professional translators. Answer with JSON only.`

const termsPrompt = `Document profile:
%s

List every term in the document below that must stay untranslated: company
and product names, technical terms, acronyms and similar.

Return {"terms": [{"term": "...", "category": "company|product|technical|acronym|other",
"confidence": "high|medium|low", "context": "example snippet"}]}

The context of each term is an example snippet: a short verbatim excerpt of
the document, copied exactly, around one occurrence of the term.

Document:
"""
%s
"""`
