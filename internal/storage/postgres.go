/**
 * PostgreSQL Client for the segmentation worker
 *
 * Job status and finished payloads are handed to the API service through
 * the segmentation schema. Nothing here outlives a job's review session;
 * the API service owns retention.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Variant          string
	FileName         string
	Languages        []string
	Status           string
	Stage            string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// AnalysisResult is a finished result payload for one job
type AnalysisResult struct {
	JobID        string
	Variant      string
	FileName     string
	Payload      interface{}
	SlideCount   int
	SegmentCount int
	TermCount    int
}

// JobRecord is the stored state of a job
type JobRecord struct {
	JobID            string
	Variant          string
	FileName         string
	Languages        []string
	Status           string
	Stage            string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS segmentation;

CREATE TABLE IF NOT EXISTS segmentation.processing_jobs (
	id                 TEXT PRIMARY KEY,
	variant            TEXT NOT NULL DEFAULT 'visual',
	filename           TEXT NOT NULL DEFAULT 'unknown',
	languages          TEXT[] NOT NULL DEFAULT '{}',
	status             TEXT NOT NULL,
	stage              TEXT,
	processing_time_ms BIGINT,
	error_code         TEXT,
	error_message      TEXT,
	metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS segmentation.analysis_results (
	job_id        TEXT PRIMARY KEY REFERENCES segmentation.processing_jobs(id) ON DELETE CASCADE,
	variant       TEXT NOT NULL,
	filename      TEXT NOT NULL,
	result        JSONB NOT NULL,
	slide_count   INTEGER NOT NULL DEFAULT 0,
	segment_count INTEGER NOT NULL DEFAULT 0,
	term_count    INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the segmentation schema and tables if missing.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create segmentation schema: %w", describePQError(err))
	}
	return nil
}

// UpdateJobStatus upserts the job row. The worker may see a job before
// the API service has recorded it.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if update.Metadata == nil {
		metadataJSON = []byte(`{}`)
	}

	languages := update.Languages
	if languages == nil {
		languages = []string{}
	}

	query := `
		INSERT INTO segmentation.processing_jobs (
			id, variant, filename, languages, status, stage,
			processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1, COALESCE(NULLIF($2, ''), 'visual'), COALESCE(NULLIF($3, ''), 'unknown'), $4,
			$5, NULLIF($6, ''), NULLIF($7, 0), NULLIF($8, ''), NULLIF($9, ''), $10::jsonb,
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stage = COALESCE(EXCLUDED.stage, segmentation.processing_jobs.stage),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, segmentation.processing_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = segmentation.processing_jobs.metadata || EXCLUDED.metadata,
			languages = CASE
				WHEN cardinality(EXCLUDED.languages) > 0 THEN EXCLUDED.languages
				ELSE segmentation.processing_jobs.languages
			END,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,
		update.Variant,
		update.FileName,
		pq.Array(languages),
		update.Status,
		update.Stage,
		update.ProcessingTimeMs,
		update.ErrorCode,
		update.ErrorMessage,
		string(sanitizeJSONForPostgres(metadataJSON)),
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, describePQError(err))
	}
	return nil
}

// StoreResult writes the finished payload for a job, replacing any earlier one.
func (p *PostgresClient) StoreResult(ctx context.Context, result *AnalysisResult, payload []byte) error {
	if result.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	query := `
		INSERT INTO segmentation.analysis_results (
			job_id, variant, filename, result, slide_count, segment_count, term_count, created_at
		) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			variant = EXCLUDED.variant,
			filename = EXCLUDED.filename,
			result = EXCLUDED.result,
			slide_count = EXCLUDED.slide_count,
			segment_count = EXCLUDED.segment_count,
			term_count = EXCLUDED.term_count,
			created_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		result.JobID,
		result.Variant,
		result.FileName,
		string(payload),
		result.SlideCount,
		result.SegmentCount,
		result.TermCount,
	)
	if err != nil {
		return fmt.Errorf("failed to store result for job %s: %w", result.JobID, describePQError(err))
	}
	return nil
}

// GetResult returns the stored JSON payload of a job.
func (p *PostgresClient) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT result FROM segmentation.analysis_results WHERE job_id = $1`, jobID,
	).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", describePQError(err))
	}
	return payload, nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT id, variant, filename, languages, status, stage, processing_time_ms,
		       error_code, error_message, metadata, created_at, updated_at
		FROM segmentation.processing_jobs
		WHERE id = $1
	`

	var (
		rec                            JobRecord
		languages                      pq.StringArray
		stage, errorCode, errorMessage sql.NullString
		processingTimeMs               sql.NullInt64
		metadataJSON                   []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.JobID, &rec.Variant, &rec.FileName, &languages, &rec.Status, &stage,
		&processingTimeMs, &errorCode, &errorMessage, &metadataJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", describePQError(err))
	}

	rec.Languages = []string(languages)
	rec.Stage = stage.String
	rec.ProcessingTimeMs = processingTimeMs.Int64
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

// describePQError adds the SQLSTATE code and detail of a server error.
func describePQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Detail != "" {
			return fmt.Errorf("%w (code=%s, detail=%s)", err, pqErr.Code, pqErr.Detail)
		}
		return fmt.Errorf("%w (code=%s)", err, pqErr.Code)
	}
	return err
}
