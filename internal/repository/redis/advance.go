package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key patterns for advancement coordination.
func lockKey(userID string) string     { return "user:" + userID + ":lock" }
func throttleKey(userID string) string { return "user:" + userID + ":advanced" }

// DuePrefix prefixes the timer keys whose expiry triggers an advancement.
const DuePrefix = "due:"

func dueKey(userID string) string { return DuePrefix + userID }

// UserIDFromDueKey extracts the user id from an expired due key.
func UserIDFromDueKey(key string) (string, bool) {
	if !strings.HasPrefix(key, DuePrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, DuePrefix)
	return id, id != ""
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireUserLock takes the per-user advisory lock. It returns "" when another
// process holds it.
func (c *Client) AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(userID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire user lock: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseUserLock drops the lock if it is still ours.
func (c *Client) ReleaseUserLock(ctx context.Context, userID, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, c.rdb, []string{lockKey(userID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release user lock: %w", err)
	}
	return nil
}

// AllowAdvance marks the user as advanced for the window. It returns false if
// the mark already exists.
func (c *Client) AllowAdvance(ctx context.Context, userID string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := c.rdb.SetNX(ctx, throttleKey(userID), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("advance throttle: %w", err)
	}
	return ok, nil
}

// ScheduleDue sets a key that expires when the user's next queue entry or
// mission is due. Past times expire almost immediately.
func (c *Client) ScheduleDue(ctx context.Context, userID string, at time.Time) error {
	ttl := time.Until(at)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := c.rdb.Set(ctx, dueKey(userID), at.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("schedule due: %w", err)
	}
	return nil
}

// ClearDue removes the user's due timer.
func (c *Client) ClearDue(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, dueKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear due: %w", err)
	}
	return nil
}
