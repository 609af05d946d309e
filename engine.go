package falcomAuth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	internalaudit "github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/MrEthical07/falcomAuth/internal/flows"
	"github.com/MrEthical07/falcomAuth/jwt"
	"github.com/MrEthical07/falcomAuth/password"
)

// Engine runs the registration, login, MFA, password reset and token flows
// against an account.Store. It is safe for concurrent use; build one with
// New().…Build() and Close it on shutdown.
type Engine struct {
	config       Config
	store        account.Store
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	email        EmailSender
	sms          SMSSender
	captcha      CaptchaVerifier
	now          func() time.Time
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RecordRateLimitHit counts a request denied by an outer rate limiter.
func (e *Engine) RecordRateLimitHit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimited, false, "", ErrTooManyRequests, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

// Ping reports whether the account store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return e.mapStoreError(err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now().UTC()
	}
	return time.Now().UTC()
}

// hooks wires the callbacks every flow shares.
func (e *Engine) hooks() flows.Hooks {
	return flows.Hooks{
		Now:           e.clock,
		MetricInc:     func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:     e.emitAudit,
		MapStoreError: e.mapStoreError,
		Invalid: func(field, reason string) error {
			return &ValidationError{Field: field, Reason: reason}
		},
		Locked: func(err error, retryAfter time.Duration) error {
			return &LockedError{Err: err, RetryAfter: retryAfter}
		},
	}
}

func (e *Engine) mapStoreError(err error) error {
	var dup *account.DuplicateError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &dup):
		return fmt.Errorf("%w: %s", ErrAccountExists, dup.Field)
	case errors.Is(err, account.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, account.ErrAlreadyVerified):
		return ErrAlreadyVerified
	case errors.Is(err, account.ErrOTPStale):
		return ErrOTPExpired
	case errors.Is(err, account.ErrResendBlocked):
		return ErrTooManyRequests
	case errors.Is(err, account.ErrCounterLocked):
		return ErrAccountLocked
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (e *Engine) checkPassword(pw string) error {
	if err := e.config.PasswordPolicy.Check(pw); err != nil {
		var pe *password.PolicyError
		if errors.As(err, &pe) {
			return fmt.Errorf("%w: %s", ErrPasswordPolicy, pe.Error())
		}
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) issueToken(uid string, role account.Role) (string, time.Time, error) {
	return e.jwtManager.CreateToken(uid, string(role))
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.passwordHash != nil && e.jwtManager != nil
}
