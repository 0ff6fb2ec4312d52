package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"campushub/models"
	"campushub/utils"

	"github.com/go-redis/redis/v8"
)

// OfflineQueue is a per-user ordered list of pending notifications, used
// when a target user has no live connection. It is a best-effort catch-up
// buffer, not an acknowledgment queue.
type OfflineQueue interface {
	Enqueue(ctx context.Context, userID string, n *models.Notification) error
	Drain(ctx context.Context, userID string) ([]models.Notification, error)
	Len(ctx context.Context, userID string) (int64, error)
}

// RedisOfflineQueue implements OfflineQueue on a redis list per user.
// Entries are appended newest-last (RPUSH); the list is trimmed so the
// oldest entries are evicted first, and the key expires after the retention
// window if the user never reconnects.
type RedisOfflineQueue struct {
	client *redis.Client
}

func NewRedisOfflineQueue(client *redis.Client) *RedisOfflineQueue {
	return &RedisOfflineQueue{client: client}
}

func queueKey(userID string) string {
	return utils.OfflineQueuePrefix + userID
}

func (q *RedisOfflineQueue) Enqueue(ctx context.Context, userID string, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("offline queue: marshal notification %s: %w", n.ID, err)
	}

	key := queueKey(userID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -utils.OfflineQueueMaxLen, -1)
	pipe.Expire(ctx, key, utils.OfflineQueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("offline queue: enqueue for %s: %w", userID, err)
	}
	return nil
}

// Drain returns the queued notifications oldest-first and clears the queue.
// Clients reverse for newest-first display.
func (q *RedisOfflineQueue) Drain(ctx context.Context, userID string) ([]models.Notification, error) {
	key := queueKey(userID)

	entries, err := q.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("offline queue: read for %s: %w", userID, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if err := q.client.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("offline queue: clear for %s: %w", userID, err)
	}

	out := make([]models.Notification, 0, len(entries))
	for _, entry := range entries {
		var n models.Notification
		if err := json.Unmarshal([]byte(entry), &n); err != nil {
			// A corrupt entry is dropped rather than wedging the backlog.
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (q *RedisOfflineQueue) Len(ctx context.Context, userID string) (int64, error) {
	return q.client.LLen(ctx, queueKey(userID)).Result()
}
