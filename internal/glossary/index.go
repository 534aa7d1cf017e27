package glossary

import (
	"context"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"
)

// TermIndex is a per-job vector index used to spot near-duplicate terms
// such as "Acme Corp" and "ACME Corporation".
type TermIndex interface {
	// Nearest returns the closest stored term; ok is false when the index is empty.
	Nearest(ctx context.Context, text string) (id string, similarity float32, ok bool, err error)
	Add(ctx context.Context, id, text string) error
	Close(ctx context.Context) error
}

// MemoryIndex keeps term embeddings in an in-process chromem collection
type MemoryIndex struct {
	coll *chromem.Collection
}

// NewOllamaEmbedding returns an embedding func backed by an Ollama server.
func NewOllamaEmbedding(ollamaURL, model string) chromem.EmbeddingFunc {
	return chromem.NewEmbeddingFuncOllama(model, strings.TrimRight(ollamaURL, "/")+"/api")
}

// NewMemoryIndex creates an empty index named after the job.
func NewMemoryIndex(name string, embed chromem.EmbeddingFunc) (*MemoryIndex, error) {
	db := chromem.NewDB()
	coll, err := db.CreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create term collection: %w", err)
	}
	return &MemoryIndex{coll: coll}, nil
}

func (m *MemoryIndex) Nearest(ctx context.Context, text string) (string, float32, bool, error) {
	if m.coll.Count() == 0 {
		return "", 0, false, nil
	}
	results, err := m.coll.Query(ctx, text, 1, nil, nil)
	if err != nil {
		return "", 0, false, fmt.Errorf("term query failed: %w", err)
	}
	if len(results) == 0 {
		return "", 0, false, nil
	}
	return results[0].ID, results[0].Similarity, true, nil
}

func (m *MemoryIndex) Add(ctx context.Context, id, text string) error {
	return m.coll.AddDocument(ctx, chromem.Document{ID: id, Content: text})
}

// Close is a no-op; the collection is dropped with the index.
func (m *MemoryIndex) Close(ctx context.Context) error {
	return nil
}
