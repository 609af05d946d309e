package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, "fa:")
}

func TestCheckAllowsBudgetThenLimits(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 5, Window: 15 * time.Minute}

	for i := 0; i < 5; i++ {
		if err := l.Check(ctx, "login", "10.0.0.1", rule); err != nil {
			t.Fatalf("hit %d: unexpected error %v", i+1, err)
		}
	}

	err := l.Check(ctx, "login", "10.0.0.1", rule)
	var le *LimitedError
	if !errors.As(err, &le) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected LimitedError, got %v", err)
	}
	if le.RetryAfter <= 0 || le.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry after %v", le.RetryAfter)
	}

	if err := l.Check(ctx, "login", "10.0.0.2", rule); err != nil {
		t.Fatalf("expected other subject unaffected, got %v", err)
	}
	if err := l.Check(ctx, "otp", "10.0.0.1", rule); err != nil {
		t.Fatalf("expected other scope unaffected, got %v", err)
	}

	mr.FastForward(15 * time.Minute)
	if err := l.Check(ctx, "login", "10.0.0.1", rule); err != nil {
		t.Fatalf("expected new window after expiry, got %v", err)
	}
}

func TestWindowIsFixed(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 2, Window: time.Minute}

	_ = l.Check(ctx, "otp", "ip", rule)
	mr.FastForward(40 * time.Second)
	_ = l.Check(ctx, "otp", "ip", rule)

	if ttl := mr.TTL("fa:rl:otp:ip"); ttl > 20*time.Second {
		t.Fatalf("expected later hits not to extend the window, ttl=%v", ttl)
	}
}

func TestDisabledRuleSkipsRedis(t *testing.T) {
	mr, l := newTestLimiter(t)
	if err := l.Check(context.Background(), "login", "ip", Rule{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys, got %v", mr.Keys())
	}
}

func TestReset(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 1, Window: time.Minute}

	_ = l.Check(ctx, "login", "ip", rule)
	if err := l.Check(ctx, "login", "ip", rule); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit, got %v", err)
	}
	if err := l.Reset(ctx, "login", "ip"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := l.Check(ctx, "login", "ip", rule); err != nil {
		t.Fatalf("expected allowed after reset, got %v", err)
	}
}

func TestRedisDown(t *testing.T) {
	mr, l := newTestLimiter(t)
	mr.Close()
	err := l.Check(context.Background(), "login", "ip", Rule{Max: 1, Window: time.Minute})
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
