package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter: the first hit in a window sets the expiry.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// CheckKey buckets license checks per machine.
func CheckKey(hwid string) string {
	return fmt.Sprintf("rate_limit:check:%s", hwid)
}

// CommandKey buckets bot commands per user and command.
func CommandKey(tgID int64, command string) string {
	return fmt.Sprintf("rate_limit:cmd:%d:%s", tgID, command)
}
