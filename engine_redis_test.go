package falcomAuth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/falcomAuth/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisHarness(t *testing.T) (*harness, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return newHarnessWithStore(t, redisstore.New(rdb, "it")), mr
}

func TestRedisBackedLifecycle(t *testing.T) {
	h, _ := newRedisHarness(t)
	ctx := context.Background()

	id := h.registerVerified(t)
	uid, tok := h.token(t)
	if uid != id {
		t.Fatalf("expected token for %s, got %s", id, uid)
	}
	if _, err := h.engine.RefreshToken(ctx, tok, ""); err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}

	if err := h.engine.RequestPasswordReset(ctx, testPhone); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	requireLocked(t, h.engine.RequestPasswordReset(ctx, testPhone), ErrTooManyRequests)
	if err := h.engine.ConfirmPasswordReset(ctx, testPhone, h.sms.lastCode(t), testNewPassword); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	if _, err := h.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testNewPassword, CaptchaToken: "tok"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestRedisBackedLoginLockout(t *testing.T) {
	h, _ := newRedisHarness(t)
	h.registerVerified(t)
	ctx := context.Background()
	bad := LoginRequest{Email: testEmail, Password: "Wr0ng!Pass", CaptchaToken: "tok"}

	for i := 0; i < 2; i++ {
		if _, err := h.engine.Login(ctx, bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	requireLocked(t, func() error { _, err := h.engine.Login(ctx, bad); return err }(), ErrAccountLocked)

	h.clock.Advance(15 * time.Minute)
	h.login(t)
}

func TestRedisDownReportsStoreUnavailable(t *testing.T) {
	h, mr := newRedisHarness(t)
	mr.Close()

	if err := h.engine.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := h.engine.Register(context.Background(), h.registerRequest()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
