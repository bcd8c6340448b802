// Package enrichment hands freshly recorded messages to the downstream
// analysis worker.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// TaskName identifies analysis jobs on the queue.
const TaskName = "mail.analyze"

// Enqueuer schedules analysis for a committed ProcessedMessage row.
type Enqueuer interface {
	Enqueue(ctx context.Context, processedMessageID uint) error
}

// Task is the JSON document pushed onto the queue.
type Task struct {
	ID                 string    `json:"id"`
	Task               string    `json:"task"`
	ProcessedMessageID uint      `json:"processed_message_id"`
	EnqueuedAt         time.Time `json:"enqueued_at"`
}

type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisEnqueuer LPUSHes tasks to a Redis list; workers BRPOP from the other end.
type RedisEnqueuer struct {
	rdb   listPusher
	queue string
	now   func() time.Time
}

func NewRedisEnqueuer(rdb *redis.Client, queue string) *RedisEnqueuer {
	return newRedisEnqueuer(rdb, queue)
}

func newRedisEnqueuer(rdb listPusher, queue string) *RedisEnqueuer {
	return &RedisEnqueuer{rdb: rdb, queue: queue, now: time.Now}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (e *RedisEnqueuer) Enqueue(ctx context.Context, processedMessageID uint) error {
	task := Task{
		ID:                 uuid.New().String(),
		Task:               TaskName,
		ProcessedMessageID: processedMessageID,
		EnqueuedAt:         e.now().UTC(),
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal enrichment task: %w", err)
	}

	if err := e.rdb.LPush(ctx, e.queue, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH to %s: %w", e.queue, err)
	}

	logrus.WithFields(logrus.Fields{
		"task_id":              task.ID,
		"processed_message_id": processedMessageID,
		"queue":                e.queue,
	}).Debug("Enrichment task enqueued")
	return nil
}

// LogEnqueuer records the request and drops it. Used when no queue is configured.
type LogEnqueuer struct{}

func (LogEnqueuer) Enqueue(_ context.Context, processedMessageID uint) error {
	logrus.WithField("processed_message_id", processedMessageID).Debug("Enrichment queue not configured, skipping")
	return nil
}
