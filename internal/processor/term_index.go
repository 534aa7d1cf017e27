package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/adverant/nexus/segment-worker/internal/config"
	"github.com/adverant/nexus/segment-worker/internal/glossary"
	"github.com/adverant/nexus/segment-worker/internal/storage"
)

// NewTermIndexFactory picks the term index backend named by TERM_INDEX.
// It returns nil for "none". Both backends embed terms with Ollama.
func NewTermIndexFactory(cfg *config.Config, sm *storage.StorageManager) (TermIndexFactory, error) {
	switch strings.ToLower(cfg.TermIndex) {
	case "", "none":
		return nil, nil

	case "memory":
		embed := glossary.NewOllamaEmbedding(cfg.OllamaURL, cfg.OllamaEmbedModel)
		return func(ctx context.Context, jobID string) (glossary.TermIndex, error) {
			idx, err := glossary.NewMemoryIndex(jobID, embed)
			if err != nil {
				return nil, err
			}
			return idx, nil
		}, nil

	case "qdrant":
		if sm == nil {
			return nil, fmt.Errorf("TERM_INDEX=qdrant needs storage")
		}
		embed := glossary.NewOllamaEmbedding(cfg.OllamaURL, cfg.OllamaEmbedModel)
		return func(ctx context.Context, jobID string) (glossary.TermIndex, error) {
			idx, err := sm.NewTermIndex(ctx, jobID, embed, cfg.QdrantVectorSize)
			if err != nil {
				return nil, err
			}
			return idx, nil
		}, nil
	}

	return nil, fmt.Errorf("unknown term index %q", cfg.TermIndex)
}
