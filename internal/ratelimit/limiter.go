// Package ratelimit throttles chat messages per user with a Redis INCR +
// EXPIRE fixed window. A Redis outage never blocks traffic.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"groupchat/pkg/logger"
)

// Rule is a limit of Limit hits per Window under the Key prefix.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// MessageRule builds the per-user message rule.
func MessageRule(limit int, window time.Duration) Rule {
	return Rule{Key: "rl:msg:", Limit: limit, Window: window}
}

type Limiter struct {
	client *redis.Client
	rule   Rule
}

func NewLimiter(client *redis.Client, rule Rule) *Limiter {
	return &Limiter{client: client, rule: rule}
}

// Allow counts one hit for userID and reports whether it is within the rule.
// On Redis errors it fails open and returns the error for logging.
func (l *Limiter) Allow(ctx context.Context, userID int) (bool, error) {
	key := l.key(userID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		logger.Warn("Rate limit INCR failed for %s, allowing: %v", key, err)
		return true, err
	}

	// First hit opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			logger.Warn("Rate limit EXPIRE failed for %s, allowing: %v", key, err)
			// A key without TTL would throttle the user forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}

func (l *Limiter) key(userID int) string {
	return l.rule.Key + strconv.Itoa(userID)
}
