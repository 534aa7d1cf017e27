/**
 * Reasoning service clients
 *
 * The worker talks to one external text/vision reasoning service per run.
 * Three backends share the Reasoner interface:
 * - Ollama (local models, slide images supported)
 * - Gemini (hosted)
 * - MageAgent (Nexus orchestrator, picks its own model)
 */

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ReasoningRequest is a single prompt sent to a reasoning service
type ReasoningRequest struct {
	System string   // Optional system instruction
	Prompt string   // User prompt
	Images [][]byte // Optional raw images (PNG/JPEG/WebP)
	JSON   bool     // Ask the service for a JSON-only answer
}

// Reasoner is implemented by every reasoning backend
type Reasoner interface {
	Name() string
	Generate(ctx context.Context, req *ReasoningRequest) (string, error)
}

// GenerateJSON sends req with JSON output requested and decodes the
// sanitized answer into out.
func GenerateJSON(ctx context.Context, r Reasoner, req *ReasoningRequest, out interface{}) error {
	req.JSON = true
	raw, err := r.Generate(ctx, req)
	if err != nil {
		return err
	}

	cleaned := SanitizeModelJSON(raw)
	if cleaned == "" {
		return fmt.Errorf("%s returned an empty response", r.Name())
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%s returned unparseable JSON: %w", r.Name(), err)
	}
	return nil
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeModelJSON strips the decoration models like to wrap JSON in:
// code fences, surrounding prose and, only when the result does not parse
// as is, comments and trailing commas. Whichever of {...} or [...] starts
// first is kept.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	if span := outermostJSON(raw); json.Valid([]byte(span)) {
		return span
	}

	// The comment and comma rewrites do not know about string literals, so
	// they only run on text that is already broken.
	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	return outermostJSON(raw)
}

func outermostJSON(raw string) string {
	opening, closing := "{", "}"
	obj := strings.Index(raw, "{")
	arr := strings.Index(raw, "[")
	if arr >= 0 && (obj < 0 || arr < obj) {
		opening, closing = "[", "]"
	}
	if start := strings.Index(raw, opening); start >= 0 {
		if end := strings.LastIndex(raw, closing); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
