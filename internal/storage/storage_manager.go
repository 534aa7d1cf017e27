/**
 * Storage Manager for the segmentation worker
 *
 * Coordinates PostgreSQL (job status, result payloads) and the optional
 * Qdrant connection used for per-job term indexes.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	qdrant   *QdrantClient
}

// NewStorageManager connects to PostgreSQL and, when qdrantAddress is set,
// to Qdrant. The segmentation schema is created if missing.
func NewStorageManager(ctx context.Context, postgresURL string, qdrantAddress string) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	if err := postgres.EnsureSchema(ctx); err != nil {
		postgres.Close()
		return nil, err
	}

	sm := &StorageManager{postgres: postgres}

	if qdrantAddress != "" {
		qc, err := NewQdrantClient(qdrantAddress)
		if err != nil {
			postgres.Close()
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		sm.qdrant = qc
	}

	return sm, nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// StoreResult encodes result.Payload and stores it for the job.
func (sm *StorageManager) StoreResult(ctx context.Context, result *AnalysisResult) error {
	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal result payload: %w", err)
	}
	return sm.postgres.StoreResult(ctx, result, sanitizeJSONForPostgres(payload))
}

// GetResult returns the stored JSON payload of a job.
func (sm *StorageManager) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	return sm.postgres.GetResult(ctx, jobID)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (*JobRecord, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// NewTermIndex opens a per-job Qdrant term index.
func (sm *StorageManager) NewTermIndex(ctx context.Context, jobID string, embed func(ctx context.Context, text string) ([]float32, error), vectorSize uint64) (*QdrantTermIndex, error) {
	if sm.qdrant == nil {
		return nil, fmt.Errorf("qdrant is not configured")
	}
	return sm.qdrant.NewTermIndex(ctx, jobID, embed, vectorSize)
}

// GetStats returns connection statistics
func (sm *StorageManager) GetStats(ctx context.Context) map[string]interface{} {
	pgStats := sm.postgres.GetStats()

	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.qdrant != nil {
		stats["qdrant"] = map[string]interface{}{"reachable": sm.qdrant.Ping(ctx) == nil}
	}
	return stats
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}
	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}
	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}
	return nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes escapes JSONB rejects. \u0000 is dropped;
// other C0 control escapes become a space. Text extracted from PDFs and
// slides carries these regularly.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
