package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is a request budget per window.
type Rule struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether r limits anything.
func (r Rule) Enabled() bool {
	return r.Max > 0 && r.Window > 0
}

// Limiter counts hits per scope and subject in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Limiter. prefix namespaces keys when several services share
// a Redis.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	return &Limiter{redis: redisClient, prefix: prefix}
}

// Check records one hit for subject under scope and returns a *LimitedError
// once rule.Max hits have been seen in the current window.
func (l *Limiter) Check(ctx context.Context, scope, subject string, rule Rule) error {
	if l == nil || !rule.Enabled() {
		return nil
	}
	key := l.key(scope, subject)

	count, err := l.incrementWithTTL(ctx, key, rule.Window)
	if err != nil {
		return err
	}
	if count <= int64(rule.Max) {
		return nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		ttl = rule.Window
	}
	return &LimitedError{Scope: scope, RetryAfter: ttl}
}

// Reset drops the counter for subject under scope.
func (l *Limiter) Reset(ctx context.Context, scope, subject string) error {
	if err := l.redis.Del(ctx, l.key(scope, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: only the first hit sets the expiry.
	if count == 1 {
		if err := l.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func (l *Limiter) key(scope, subject string) string {
	if subject == "" {
		subject = "unknown"
	}
	var b strings.Builder
	b.Grow(len(l.prefix) + len(scope) + len(subject) + 4)
	b.WriteString(l.prefix)
	b.WriteString("rl:")
	b.WriteString(scope)
	b.WriteByte(':')
	b.WriteString(subject)
	return b.String()
}
