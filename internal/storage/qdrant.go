/**
 * Qdrant term index for the segmentation worker
 *
 * Each glossary job gets its own collection holding the embeddings of the
 * terms kept so far. The collection is dropped when the job finishes, so
 * nothing is shared across documents.
 */

package storage

import (
	"context"
	"fmt"
	"strings"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// EmbedFunc turns text into a vector
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// QdrantClient holds the gRPC connection shared by all term indexes
type QdrantClient struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	conn        *grpc.ClientConn
}

// NewQdrantClient connects to Qdrant's gRPC API
func NewQdrantClient(address string) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	return &QdrantClient{
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		conn:        conn,
	}, nil
}

// Ping lists collections to verify the connection.
func (q *QdrantClient) Ping(ctx context.Context) error {
	if _, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// QdrantTermIndex is a per-job term collection
type QdrantTermIndex struct {
	client     *QdrantClient
	collection string
	embed      EmbedFunc
	size       uint64
}

// termCollectionName derives a valid collection name from a job id.
func termCollectionName(jobID string) string {
	var b strings.Builder
	b.WriteString("terms_")
	for _, r := range strings.ToLower(jobID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// NewTermIndex creates a fresh cosine collection for jobID. Any leftover
// collection from an earlier attempt of the same job is replaced.
func (q *QdrantClient) NewTermIndex(ctx context.Context, jobID string, embed func(ctx context.Context, text string) ([]float32, error), vectorSize uint64) (*QdrantTermIndex, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if vectorSize == 0 {
		return nil, fmt.Errorf("vector size is required")
	}

	idx := &QdrantTermIndex{
		client:     q,
		collection: termCollectionName(jobID),
		embed:      embed,
		size:       vectorSize,
	}

	listResp, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, col := range listResp.Collections {
		if col.Name == idx.collection {
			if err := idx.Close(ctx); err != nil {
				return nil, err
			}
			break
		}
	}

	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     vectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create term collection %s: %w", idx.collection, err)
	}

	return idx, nil
}

func (t *QdrantTermIndex) vector(ctx context.Context, text string) ([]float32, error) {
	vec, err := t.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed term: %w", err)
	}
	if uint64(len(vec)) != t.size {
		return nil, fmt.Errorf("invalid vector dimensions: expected %d, got %d", t.size, len(vec))
	}
	return vec, nil
}

// Nearest returns the id and cosine score of the closest stored term.
func (t *QdrantTermIndex) Nearest(ctx context.Context, text string) (string, float32, bool, error) {
	vec, err := t.vector(ctx, text)
	if err != nil {
		return "", 0, false, err
	}

	results, err := t.client.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: t.collection,
		Vector:         vec,
		Limit:          1,
	})
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to search terms: %w", err)
	}
	if len(results.Result) == 0 || results.Result[0].Id == nil {
		return "", 0, false, nil
	}

	best := results.Result[0]
	return best.Id.GetUuid(), best.Score, true, nil
}

// Add stores a term under its id, which must be a UUID.
func (t *QdrantTermIndex) Add(ctx context.Context, id, text string) error {
	vec, err := t.vector(ctx, text)
	if err != nil {
		return err
	}

	wait := true
	_, err = t.client.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: t.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id: &qdrant.PointId{
					PointIdOptions: &qdrant.PointId_Uuid{Uuid: id},
				},
				Vectors: &qdrant.Vectors{
					VectorsOptions: &qdrant.Vectors_Vector{
						Vector: &qdrant.Vector{Data: vec},
					},
				},
				Payload: map[string]*qdrant.Value{
					"term": {Kind: &qdrant.Value_StringValue{StringValue: text}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert term: %w", err)
	}
	return nil
}

// Close drops the job's collection.
func (t *QdrantTermIndex) Close(ctx context.Context) error {
	_, err := t.client.collections.Delete(ctx, &qdrant.DeleteCollection{
		CollectionName: t.collection,
	})
	if err != nil {
		return fmt.Errorf("failed to drop term collection %s: %w", t.collection, err)
	}
	return nil
}
