/**
 * Queue Consumer for the Segmentation Worker
 *
 * Consumes segmentation tasks through asynq. Input errors are never
 * retried; everything else follows asynq's retry schedule.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
	"github.com/adverant/nexus/segment-worker/internal/logging"
	"github.com/adverant/nexus/segment-worker/internal/processor"
)

// Consumer handles job consumption from an asynq queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	events    *EventPublisher
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Processor   processor.DocumentProcessorInterface
	Events      *EventPublisher // optional
}

// asynqLogger routes asynq's own logging through the worker logger
type asynqLogger struct {
	l *logging.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}

// retryDelay backs off 5s, 10s, 20s ... capped at one minute.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second || delay <= 0 {
		delay = 60 * time.Second
	}
	return delay
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("QueueConsumer")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: retryDelay,
			IsFailure: func(err error) bool {
				return !apperrors.IsInputError(err)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn("Task processing error",
					"type", task.Type(),
					"code", apperrors.CodeOf(err),
					"error", err)
			}),
			Logger: asynqLogger{l: logger},
		},
	)

	c := &Consumer{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		events:    cfg.Events,
		config:    cfg,
		logger:    logger,
	}
	c.mux.HandleFunc(TaskTypeSegmentDocument, c.handleSegmentDocument)

	return c, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleSegmentDocument processes one segmentation task
func (c *Consumer) handleSegmentDocument(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseJobPayload(task.Payload())
	if err != nil {
		// A malformed payload will not parse on a later attempt either.
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	log := c.logger.With("jobId", payload.JobID)
	log.Info("Processing document", "fileName", payload.FileName, "variant", payload.Variant)
	c.publish(ctx, log, EventProcessing, payload.JobID, nil)

	result, err := c.processor.ProcessDocument(ctx, payload.Request())
	if err != nil {
		c.publish(ctx, log, EventFailed, payload.JobID, failureData(err))
		if !apperrors.Retryable(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("document processing failed: %w", err)
	}

	c.publish(ctx, log, EventCompleted, payload.JobID, resultSummary(result))
	return nil
}

func (c *Consumer) publish(ctx context.Context, log *logging.Logger, status, jobID string, data map[string]interface{}) {
	if err := c.events.Publish(ctx, status, jobID, data); err != nil {
		log.Warn("Failed to publish job event", "event", status, "error", err)
	}
}

// failureData is the event body for a failed job.
func failureData(err error) map[string]interface{} {
	var perr *apperrors.ProcessingError
	if errors.As(err, &perr) {
		return perr.ToMap()
	}
	return map[string]interface{}{"message": err.Error()}
}

// Enqueue submits a segmentation job. The job id doubles as the task id,
// so a job cannot be queued twice while it is pending.
func Enqueue(ctx context.Context, client *asynq.Client, queueName string, payload *JobPayload, maxRetry int) (*asynq.TaskInfo, error) {
	if payload.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeSegmentDocument, data)
	info, err := client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(maxRetry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return info, nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
