package glossary

import (
	"encoding/json"
	"strings"
)

// DocumentContext is the profile inferred from the start of a document.
// Keys the model adds beyond the known ones are kept in Extra.
type DocumentContext struct {
	Organization      string   `json:"organization,omitempty"`
	AuthorRole        string   `json:"authorRole,omitempty"`
	Audience          string   `json:"audience,omitempty"`
	Domain            string   `json:"domain,omitempty"`
	DocumentType      string   `json:"documentType,omitempty"`
	Region            string   `json:"region,omitempty"`
	Formality         string   `json:"formality,omitempty"`
	TechnicalDepth    string   `json:"technicalDepth,omitempty"`
	BusinessStage     string   `json:"businessStage,omitempty"`
	RegulatoryContext string   `json:"regulatoryContext,omitempty"`
	PotentialTerms    []string `json:"potentialTerms,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

type documentContextFields DocumentContext

var knownContextKeys = map[string]bool{
	"organization": true, "authorRole": true, "audience": true, "domain": true,
	"documentType": true, "region": true, "formality": true, "technicalDepth": true,
	"businessStage": true, "regulatoryContext": true, "potentialTerms": true,
}

// UnmarshalJSON decodes the known fields and collects the rest into Extra.
func (c *DocumentContext) UnmarshalJSON(data []byte) error {
	var fields documentContextFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var all map[string]interface{}
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	*c = DocumentContext(fields)
	for k, v := range all {
		if knownContextKeys[k] {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]interface{})
		}
		c.Extra[k] = v
	}
	return nil
}

// MarshalJSON writes the known fields with Extra flattened alongside.
func (c DocumentContext) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(documentContextFields(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]interface{}, len(c.Extra)+len(knownContextKeys))
	for k, v := range c.Extra {
		merged[k] = v
	}
	var known map[string]interface{}
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Category classifies why a term should stay untranslated
type Category string

const (
	CategoryCompany   Category = "company"
	CategoryProduct   Category = "product"
	CategoryTechnical Category = "technical"
	CategoryAcronym   Category = "acronym"
	CategoryOther     Category = "other"
)

// ParseCategory maps a model label onto Category; unknown labels are other.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "company", "organization", "organisation", "brand", "company name":
		return CategoryCompany
	case "product", "product name", "service":
		return CategoryProduct
	case "technical", "technology", "technical term", "jargon":
		return CategoryTechnical
	case "acronym", "abbreviation", "initialism":
		return CategoryAcronym
	}
	return CategoryOther
}

// Confidence is the model's certainty that a term must stay untranslated
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps a model label onto Confidence; unknown labels are low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	}
	return 0
}

// Term is one do-not-translate candidate
type Term struct {
	ID         string     `json:"id"`
	Term       string     `json:"term"`
	Category   Category   `json:"category"`
	Confidence Confidence `json:"confidence"`
	Context    string     `json:"context,omitempty"`
	Frequency  int        `json:"frequency"`
}

// Result is the glossary payload for one document
type Result struct {
	Context *DocumentContext `json:"context"`
	Terms   []Term           `json:"terms"`
}
