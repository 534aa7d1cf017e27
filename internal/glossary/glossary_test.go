package glossary

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/adverant/nexus/segment-worker/internal/clients"
	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
)

// scriptedReasoner answers each call with the next scripted reply.
type scriptedReasoner struct {
	replies []string
	errs    []error
	prompts []string
}

func (s *scriptedReasoner) Name() string { return "scripted" }

func (s *scriptedReasoner) Generate(ctx context.Context, req *clients.ReasoningRequest) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, req.Prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], err
	}
	return "", err
}

const sampleText = "Acme Cloud powers the Widget API. Widgets are provisioned by Acme Cloud in every region."

func TestPipelineRun(t *testing.T) {
	r := &scriptedReasoner{replies: []string{
		`{"organization": "Acme", "domain": "cloud", "potentialTerms": ["Acme Cloud"], "tone": "upbeat"}`,
		`{"terms": [
			{"term": "Acme  Cloud", "category": "Organization", "confidence": "HIGH", "context": "company name"},
			{"term": "acme cloud", "category": "company", "confidence": "low"},
			{"term": "Widget", "category": "gadget", "confidence": "sure"},
			{"term": "  ", "category": "other"}
		]}`,
	}}

	var states []State
	p := NewPipeline(PipelineConfig{
		Reasoner:      r,
		OnStateChange: func(s State) { states = append(states, s) },
	})

	res, err := p.Run(context.Background(), "job-1", "doc.txt", sampleText, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Context.Organization != "Acme" || res.Context.Extra["tone"] != "upbeat" {
		t.Errorf("context = %+v", res.Context)
	}

	if len(res.Terms) != 2 {
		t.Fatalf("terms = %+v", res.Terms)
	}
	acme := res.Terms[0]
	if acme.Term != "Acme Cloud" || acme.Category != CategoryCompany || acme.Confidence != ConfidenceHigh {
		t.Errorf("first term = %+v", acme)
	}
	if acme.Frequency != 2 {
		t.Errorf("Acme Cloud frequency = %d, want 2", acme.Frequency)
	}
	widget := res.Terms[1]
	if widget.Category != CategoryOther || widget.Confidence != ConfidenceLow || widget.Frequency != 2 {
		t.Errorf("second term = %+v", widget)
	}
	if acme.ID == "" || acme.ID == widget.ID {
		t.Errorf("term ids must be unique: %q %q", acme.ID, widget.ID)
	}

	want := []State{StateIdle, StateContextExtracting, StateTermExtracting, StateDone}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}

	if !strings.Contains(r.prompts[1], `"organization":"Acme"`) {
		t.Errorf("stage 2 prompt should carry the context: %s", r.prompts[1])
	}
	if !strings.Contains(r.prompts[1], "example snippet") || !strings.Contains(r.prompts[1], "verbatim excerpt") {
		t.Errorf("stage 2 prompt should ask for an example snippet per term: %s", r.prompts[1])
	}
	if strings.Contains(r.prompts[1], "why it must stay untranslated") {
		t.Error("stage 2 prompt should not ask for a rationale")
	}
}

func TestPipelineContextFailureStopsRun(t *testing.T) {
	tests := []struct {
		name string
		r    *scriptedReasoner
	}{
		{"service error", &scriptedReasoner{errs: []error{errors.New("503")}, replies: []string{"", `{"terms": []}`}}},
		{"unparseable", &scriptedReasoner{replies: []string{"no idea", `{"terms": []}`}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var states []State
			p := NewPipeline(PipelineConfig{Reasoner: tc.r, OnStateChange: func(s State) { states = append(states, s) }})

			res, err := p.Run(context.Background(), "job-2", "doc.txt", sampleText, nil)
			if res != nil {
				t.Errorf("expected no partial result, got %+v", res)
			}
			if apperrors.CodeOf(err) != apperrors.ErrorContextInference {
				t.Errorf("error = %v", err)
			}
			if len(tc.r.prompts) != 1 {
				t.Errorf("stage 2 must not run, service called %d times", len(tc.r.prompts))
			}
			if states[len(states)-1] != StateFailed {
				t.Errorf("final state = %s", states[len(states)-1])
			}
		})
	}
}

func TestPipelineTermFailure(t *testing.T) {
	r := &scriptedReasoner{replies: []string{`{"domain": "x"}`, `{"glossary": []}`}}
	res, err := NewPipeline(PipelineConfig{Reasoner: r}).Run(context.Background(), "job-3", "doc.txt", sampleText, nil)

	if res != nil || apperrors.CodeOf(err) != apperrors.ErrorTermExtraction {
		t.Errorf("Run = %+v, %v", res, err)
	}
}

func TestPipelineRejectsEmptyText(t *testing.T) {
	r := &scriptedReasoner{}
	_, err := NewPipeline(PipelineConfig{Reasoner: r}).Run(context.Background(), "job-4", "empty.txt", " \n\t ", nil)

	if apperrors.CodeOf(err) != apperrors.ErrorEmptyText {
		t.Errorf("error = %v", err)
	}
	if len(r.prompts) != 0 {
		t.Error("service should not be called for empty text")
	}
}

func TestPipelineWithoutReasoner(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{}).Run(context.Background(), "job-5", "doc.txt", sampleText, nil)
	if apperrors.CodeOf(err) != apperrors.ErrorContextInference {
		t.Errorf("error = %v", err)
	}
}

func TestInferContextSamplesOpening(t *testing.T) {
	r := &scriptedReasoner{replies: []string{`{}`}}
	p := NewPipeline(PipelineConfig{Reasoner: r, SampleChars: 5})

	if _, err := p.InferContext(context.Background(), "ÄÖÜßé and the rest"); err != nil {
		t.Fatalf("InferContext: %v", err)
	}
	if !strings.Contains(r.prompts[0], "\"\"\"\nÄÖÜßé\n\"\"\"") {
		t.Errorf("sample should be the first 5 runes: %s", r.prompts[0])
	}
}

func TestDecodeTermAnswersAcceptsBareArray(t *testing.T) {
	got, err := decodeTermAnswers(json.RawMessage(`[{"term": "Nexus"}]`))
	if err != nil || len(got) != 1 || got[0].Term != "Nexus" {
		t.Errorf("decodeTermAnswers = %+v, %v", got, err)
	}
}

func TestCountFrequency(t *testing.T) {
	text := "Widget sales grew. Widgets ship daily from Acme Cloud; acme cloud is fast. Acme rocks. widget."
	tests := []struct {
		term string
		want int
	}{
		{"Widget", 3},
		{"Acme Cloud", 2},
		{"Acme", 3},
		{"Gizmo", 0},
		{"...", 0},
	}
	for _, tc := range tests {
		if got := CountFrequency(text, tc.term); got != tc.want {
			t.Errorf("CountFrequency(%q) = %d, want %d", tc.term, got, tc.want)
		}
	}
}

func TestParseLabels(t *testing.T) {
	if ParseCategory("Abbreviation") != CategoryAcronym || ParseCategory("weird") != CategoryOther {
		t.Error("ParseCategory mapping wrong")
	}
	if ParseConfidence(" Medium ") != ConfidenceMedium || ParseConfidence("very") != ConfidenceLow {
		t.Error("ParseConfidence mapping wrong")
	}
}

func TestDocumentContextJSONKeepsExtra(t *testing.T) {
	in := `{"domain":"finance","potentialTerms":["ACME"],"currency":"EUR"}`
	var c DocumentContext
	if err := json.Unmarshal([]byte(in), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Domain != "finance" || c.Extra["currency"] != "EUR" || len(c.Extra) != 1 {
		t.Fatalf("decoded = %+v", c)
	}

	out, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back map[string]interface{}
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal back: %v", err)
	}
	if back["currency"] != "EUR" || back["domain"] != "finance" {
		t.Errorf("encoded = %s", out)
	}
}

// letterEmbedding embeds text as normalised letter counts, so case and
// suffix variants of a name land close together.
func letterEmbedding(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0], norm = 1, 1
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

func TestMemoryIndexCollapsesNearDuplicates(t *testing.T) {
	index, err := NewMemoryIndex("job-6", letterEmbedding)
	if err != nil {
		t.Fatalf("NewMemoryIndex: %v", err)
	}
	defer index.Close(context.Background())

	if _, _, ok, err := index.Nearest(context.Background(), "anything"); ok || err != nil {
		t.Fatalf("empty index Nearest = %v, %v", ok, err)
	}

	r := &scriptedReasoner{replies: []string{
		`{}`,
		`{"terms": [
			{"term": "Acme Cloud", "category": "company", "confidence": "medium"},
			{"term": "Acme Clouds", "category": "company", "confidence": "high"},
			{"term": "Widget", "category": "product", "confidence": "high"}
		]}`,
	}}
	p := NewPipeline(PipelineConfig{Reasoner: r, SimilarityThreshold: 0.95})

	res, err := p.Run(context.Background(), "job-6", "doc.txt", sampleText, index)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Terms) != 2 {
		t.Fatalf("terms = %+v", res.Terms)
	}
	if res.Terms[0].Term != "Acme Cloud" || res.Terms[0].Confidence != ConfidenceHigh {
		t.Errorf("collapsed term = %+v", res.Terms[0])
	}
	if res.Terms[0].Frequency != 4 {
		t.Errorf("collapsed frequency = %d, want 4", res.Terms[0].Frequency)
	}
}

type brokenIndex struct{}

func (brokenIndex) Nearest(ctx context.Context, text string) (string, float32, bool, error) {
	return "", 0, false, errors.New("index down")
}
func (brokenIndex) Add(ctx context.Context, id, text string) error { return nil }
func (brokenIndex) Close(ctx context.Context) error                { return nil }

func TestBrokenIndexKeepsTerms(t *testing.T) {
	r := &scriptedReasoner{replies: []string{`{}`, `[{"term": "Acme"}, {"term": "Widget"}]`}}
	res, err := NewPipeline(PipelineConfig{Reasoner: r}).Run(context.Background(), "job-7", "doc.txt", sampleText, brokenIndex{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Terms) != 2 {
		t.Errorf("terms = %+v", res.Terms)
	}
}
