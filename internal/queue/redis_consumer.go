/**
 * Direct Redis Queue Consumer for the Segmentation Worker
 *
 * Compatible with the API service's list-based RedisQueue:
 *   <queue>             LIST of pending job ids
 *   <queue>:data        HASH job id -> RedisJobData
 *   <queue>:processing  SET, plus :completed and :failed
 *   <queue>:delayed     ZSET job id -> unix ms when a retry is due
 *   <queue>:results     HASH job id -> result summary
 *   <queue>:errors      HASH job id -> error details
 *   <queue>:events      pub/sub channel
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
	"github.com/adverant/nexus/segment-worker/internal/logging"
	"github.com/adverant/nexus/segment-worker/internal/processor"
)

var errNoJobs = errors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// shouldRetry reports whether a failed job goes back on the list.
func (j *RedisJobData) shouldRetry(err error) bool {
	return apperrors.Retryable(err) && j.Attempts < j.MaxRetries
}

// retryAt is when a job that has failed attempts times may run again. It
// follows the asynq backend's schedule.
func retryAt(attempts int, now time.Time) time.Time {
	return now.Add(retryDelay(attempts-1, nil, nil))
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.DocumentProcessorInterface
	events    *EventPublisher
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Processor   processor.DocumentProcessorInterface
}

func (c *RedisConsumer) key(suffix string) string {
	return c.config.QueueName + ":" + suffix
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "segmentation:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		events:    NewEventPublisher(client, cfg.QueueName),
		config:    cfg,
		logger:    logging.NewLogger("RedisConsumer"),
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	c.wg.Add(1)
	go c.scheduler()
	return nil
}

// scheduler moves retries whose delay has passed back onto the list.
func (c *RedisConsumer) scheduler() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := c.promoteDue(c.ctx, now); err != nil && c.ctx.Err() == nil {
				c.logger.Warn("Failed to promote delayed jobs", "error", err)
			}
		}
	}
}

// promoteDue pushes every delayed job due at now. ZRem decides the winner
// when several workers see the same id.
func (c *RedisConsumer) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := c.client.ZRangeByScore(ctx, c.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		removed, err := c.client.ZRem(ctx, c.key("delayed"), id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := c.client.LPush(ctx, c.config.QueueName, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// Stop lets running jobs finish, then closes the connection.
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping Redis queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log := c.logger.With("worker", id)
	log.Debug("Worker started")

	for {
		select {
		case <-c.ctx.Done():
			log.Debug("Worker stopping")
			return
		default:
		}

		err := c.processNextJob()
		if err == nil || errors.Is(err, errNoJobs) {
			continue
		}
		if c.ctx.Err() != nil {
			return
		}
		log.Warn("Worker error", "error", err)
		select {
		case <-time.After(time.Second):
		case <-c.ctx.Done():
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}
	queueID := result[1]

	raw, err := c.client.HGet(c.ctx, c.key("data"), queueID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", queueID, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.markFailed(queueID, map[string]interface{}{"message": err.Error()})
		return fmt.Errorf("failed to unmarshal job %s: %w", queueID, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = queueID
	}

	// Processing runs on its own context so Stop lets the current job finish.
	ctx := context.WithoutCancel(c.ctx)
	log := c.logger.With("jobId", job.Payload.JobID)

	c.client.SAdd(ctx, c.key("processing"), job.ID)
	c.publish(ctx, log, EventProcessing, job.Payload.JobID, nil)

	processResult, err := c.processor.ProcessDocument(ctx, job.Payload.Request())
	if err != nil {
		job.Attempts++
		if job.shouldRetry(err) {
			updated, mErr := json.Marshal(job)
			if mErr == nil {
				due := retryAt(job.Attempts, time.Now())
				c.client.HSet(ctx, c.key("data"), job.ID, updated)
				c.client.SRem(ctx, c.key("processing"), job.ID)
				c.client.ZAdd(ctx, c.key("delayed"), redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
				log.Warn("Job scheduled for retry", "attempt", job.Attempts, "maxRetries", job.MaxRetries, "retryAt", due.Format(time.RFC3339), "error", err)
				c.publish(ctx, log, EventRetrying, job.Payload.JobID, map[string]interface{}{"attempts": job.Attempts, "retryAt": due.UTC().Format(time.RFC3339)})
				return nil
			}
			log.Error("Failed to re-queue job", "error", mErr)
		}

		details := failureData(err)
		details["attempts"] = job.Attempts
		c.markFailed(job.ID, details)
		c.publish(ctx, log, EventFailed, job.Payload.JobID, details)
		log.Error("Job failed", "attempts", job.Attempts, "error", err)
		return nil
	}

	summary := resultSummary(processResult)
	if data, err := json.Marshal(summary); err == nil {
		c.client.HSet(ctx, c.key("results"), job.ID, data)
	}
	c.client.SRem(ctx, c.key("processing"), job.ID)
	c.client.SAdd(ctx, c.key("completed"), job.ID)
	c.publish(ctx, log, EventCompleted, job.Payload.JobID, summary)
	log.Info("Job completed", "processingTimeMs", processResult.ProcessingTimeMs)
	return nil
}

func (c *RedisConsumer) markFailed(queueID string, details map[string]interface{}) {
	ctx := context.WithoutCancel(c.ctx)
	c.client.SRem(ctx, c.key("processing"), queueID)
	c.client.SAdd(ctx, c.key("failed"), queueID)
	if data, err := json.Marshal(details); err == nil {
		c.client.HSet(ctx, c.key("errors"), queueID, data)
	}
}

func (c *RedisConsumer) publish(ctx context.Context, log *logging.Logger, status, jobID string, data map[string]interface{}) {
	if err := c.events.Publish(ctx, status, jobID, data); err != nil {
		log.Warn("Failed to publish job event", "event", status, "error", err)
	}
}

// PushJob adds a job to a list-based queue the way the API service does.
func PushJob(ctx context.Context, client redis.UniversalClient, queueName string, payload *JobPayload, maxRetries int) error {
	job := RedisJobData{
		ID:         payload.JobID,
		Type:       TaskTypeSegmentDocument,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, queueName+":data", job.ID, data)
		pipe.LPush(ctx, queueName, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.ID, err)
	}
	return nil
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.key("processing"))
	completed := pipe.SCard(ctx, c.key("completed"))
	failed := pipe.SCard(ctx, c.key("failed"))
	delayed := pipe.ZCard(ctx, c.key("delayed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
		"delayed":    delayed.Val(),
	}, nil
}
