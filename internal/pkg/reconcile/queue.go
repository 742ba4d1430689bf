package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// QueueKey is the Redis list holding pending reconciliation tasks.
	QueueKey = "billing:reconcile"

	// TaskTTL bounds how long the queue itself is retained when idle; tasks
	// are expected to be worked off by an operator well before this.
	TaskTTL = 30 * 24 * time.Hour
)

// Task is one billing event that could not be mapped to a user and needs a
// human to reconcile it. It carries the full external references so the
// operator can search the processor dashboard directly.
type Task struct {
	TaskID         string    `json:"task_id"`
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// commands is the subset of redis operations the queue uses; satisfied by
// *redis.Client and faked in tests.
type commands interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Queue is the manual-reconciliation queue. It has no workers on purpose:
// resolution is an operator action, the queue only makes the backlog
// visible and durable.
type Queue struct {
	client commands
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func newQueueWithCommands(client commands) *Queue {
	return &Queue{client: client}
}

// PushUnresolved enqueues an unresolvable event for manual reconciliation.
func (q *Queue) PushUnresolved(ctx context.Context, eventID, eventType, customerID, subscriptionID, reason string) error {
	task := Task{
		TaskID:         uuid.New().String(),
		EventID:        eventID,
		EventType:      eventType,
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, QueueKey, data).Err(); err != nil {
		return err
	}
	if err := q.client.Expire(ctx, QueueKey, TaskTTL).Err(); err != nil {
		log.Warnf("[Reconcile] failed to refresh queue TTL: %v", err)
	}
	log.Infof("[Reconcile] queued task %s for event %s (%s)", task.TaskID, eventID, eventType)
	return nil
}

// List returns up to limit pending tasks, newest first.
func (q *Queue) List(ctx context.Context, limit int64) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := q.client.LRange(ctx, QueueKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(raw))
	for _, item := range raw {
		var t Task
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			log.Warnf("[Reconcile] skipping malformed task entry: %v", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Len returns the number of pending tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueKey).Result()
}
