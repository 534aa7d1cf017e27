package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job lifecycle events published on <queue>:events
const (
	EventProcessing = "processing"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventRetrying   = "retrying"
)

// Event is the pub/sub message the API service streams to clients
type Event struct {
	Event     string                 `json:"event"`
	JobID     string                 `json:"jobId"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func newEvent(status, jobID string, data map[string]interface{}) Event {
	return Event{
		Event:     "job:" + status,
		JobID:     jobID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// EventPublisher publishes job events over Redis pub/sub
type EventPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewEventPublisher publishes to "<queueName>:events".
func NewEventPublisher(client redis.UniversalClient, queueName string) *EventPublisher {
	return &EventPublisher{client: client, channel: queueName + ":events"}
}

// Publish sends one event. A nil publisher drops it.
func (p *EventPublisher) Publish(ctx context.Context, status, jobID string, data map[string]interface{}) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(newEvent(status, jobID, data))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
