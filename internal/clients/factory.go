package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/adverant/nexus/segment-worker/internal/config"
)

// NewReasoner builds the configured backend wrapped in a rate limiter. It
// returns a nil Reasoner when REASONING_PROVIDER is "none"; the visual flow
// then always falls back to the classifier and the glossary flow is refused.
// The returned close function is never nil.
func NewReasoner(ctx context.Context, cfg *config.Config) (Reasoner, func() error, error) {
	noop := func() error { return nil }

	var (
		backend Reasoner
		closer  = noop
	)

	switch strings.ToLower(cfg.ReasoningProvider) {
	case "ollama":
		c, err := NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaVisionModel)
		if err != nil {
			return nil, noop, err
		}
		backend = c
	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		backend, closer = c, c.Close
	case "mageagent":
		backend = NewMageAgentClient(cfg.MageAgentURL)
	case "none":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown reasoning provider %q", cfg.ReasoningProvider)
	}

	return NewRateLimited(backend, cfg.ReasoningRatePerSecond, cfg.ReasoningBurst), closer, nil
}
