// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/rally/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) the historian drains.
const DefaultQueueName = "rally_activity"

// ConnectRedis builds a client for addr/db and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ActivityQueue pushes activity records onto a Redis list for the historian.
type ActivityQueue struct {
	rdb   redis.Cmdable
	queue string
}

// NewActivityQueue returns a producer for queue; an empty name selects DefaultQueueName.
func NewActivityQueue(rdb redis.Cmdable, queue string) *ActivityQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &ActivityQueue{rdb: rdb, queue: queue}
}

// Name returns the list the queue writes to.
func (q *ActivityQueue) Name() string { return q.queue }

// PublishActivity serializes the record to JSON and pushes it to the queue.
// This does not block the calling logic (other than a quick network send).
func (q *ActivityQueue) PublishActivity(ctx context.Context, a models.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record. It returns (nil, nil) on timeout.
func (q *ActivityQueue) Pop(ctx context.Context, timeout time.Duration) (*models.Activity, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.queue, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	// res[0] is the queue name and res[1] the payload.
	var a models.Activity
	if err := json.Unmarshal([]byte(res[1]), &a); err != nil {
		return nil, fmt.Errorf("invalid activity record: %w", err)
	}
	return &a, nil
}
