package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal"
)

type PasswordResetMetrics struct {
	Request        int
	Throttled      int
	ConfirmSuccess int
	ConfirmFailure int
	Locked         int
}

type PasswordResetEvents struct {
	Request string
	Confirm string
}

type PasswordResetErrors struct {
	EngineNotReady    error
	AccountUnverified error
	AccountLocked     error
	TooManyRequests   error
	OTPExpired        error
	InvalidOTP        error
}

type PasswordResetDeps struct {
	Hooks

	Store       account.Store
	Policy      account.LockPolicy
	OTPDigits   int
	OTPTTL      time.Duration
	ResendBlock time.Duration

	NewCode       func(int) (string, error)
	CheckPassword func(string) error
	HashPassword  func(string) (string, error)
	// SendCode texts a reset code to the account phone.
	SendCode func(ctx context.Context, acct *account.Account, code string, ttl time.Duration) error

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(d *PasswordResetDeps) {
	d.Hooks.normalize()
	if d.OTPDigits == 0 {
		d.OTPDigits = internal.DefaultCodeDigits
	}
	if d.NewCode == nil {
		d.NewCode = internal.NewNumericCode
	}
}

// RunRequestPasswordReset texts a reset code to the account registered
// under phone. A new code is refused while the previous one's resend block
// or the reset lock is active.
func RunRequestPasswordReset(ctx context.Context, phone string, d PasswordResetDeps) error {
	normalizePasswordResetDeps(&d)
	if d.Store == nil || d.SendCode == nil {
		return d.Errors.EngineNotReady
	}

	phone = strings.TrimSpace(phone)
	if !checkPhone(phone) {
		return d.fail(ctx, noMetric, d.Events.Request, "", d.Invalid("phoneNumber", "must be exactly 10 digits"), nil)
	}

	acct, err := d.Store.ByPhone(ctx, phone)
	if err != nil {
		return d.fail(ctx, noMetric, d.Events.Request, "", d.MapStoreError(err), nil)
	}
	if !acct.Verified() {
		return d.fail(ctx, noMetric, d.Events.Request, acct.ID, d.Errors.AccountUnverified, nil)
	}

	now := d.Now()
	if acct.ResetFailures.Locked(now) {
		err := d.Locked(d.Errors.TooManyRequests, acct.ResetFailures.Remaining(now))
		return d.fail(ctx, d.Metrics.Throttled, d.Events.Request, acct.ID, err, reason("locked"))
	}

	code, err := d.NewCode(d.OTPDigits)
	if err != nil {
		return err
	}
	otp := account.NewOTP(code, now, d.OTPTTL)
	if err := d.Store.IssueResetOTP(ctx, acct.ID, otp, now.Add(d.ResendBlock), now); err != nil {
		var blocked *account.ResendBlockedError
		if errors.As(err, &blocked) {
			err := d.Locked(d.Errors.TooManyRequests, blocked.Until.Sub(now))
			return d.fail(ctx, d.Metrics.Throttled, d.Events.Request, acct.ID, err, reason("resend_blocked"))
		}
		return d.fail(ctx, noMetric, d.Events.Request, acct.ID, d.MapStoreError(err), nil)
	}

	if err := d.SendCode(ctx, acct, code, d.OTPTTL); err != nil {
		// Lifting the block as well lets the caller retry at once.
		_ = d.Store.ClearOTP(ctx, acct.ID, account.PurposePasswordReset)
		return d.fail(ctx, noMetric, d.Events.Request, acct.ID, err, reason("sms_failed"))
	}

	d.MetricInc(d.Metrics.Request)
	d.EmitAudit(ctx, d.Events.Request, true, acct.ID, nil, nil)
	return nil
}

// RunConfirmPasswordReset sets a new password when code matches the live
// reset code. It does not log the user in.
func RunConfirmPasswordReset(ctx context.Context, phone, code, newPassword string, d PasswordResetDeps) error {
	normalizePasswordResetDeps(&d)
	if d.Store == nil || d.CheckPassword == nil || d.HashPassword == nil {
		return d.Errors.EngineNotReady
	}

	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if !checkPhone(phone) {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", d.Invalid("phoneNumber", "must be exactly 10 digits"), nil)
	}
	if !internal.IsNumericCode(code, d.OTPDigits) {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", d.Invalid("otp", "must be a numeric code"), nil)
	}
	if err := d.CheckPassword(newPassword); err != nil {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", err, reason("password_policy"))
	}

	acct, err := d.Store.ByPhone(ctx, phone)
	if err != nil {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", d.MapStoreError(err), nil)
	}

	now := d.Now()
	if acct.ResetFailures.Locked(now) {
		err := d.Locked(d.Errors.AccountLocked, acct.ResetFailures.Remaining(now))
		return d.fail(ctx, d.Metrics.Locked, d.Events.Confirm, acct.ID, err, nil)
	}

	switch acct.ResetOTP.Check(code, now) {
	case account.OTPAbsent:
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.Errors.OTPExpired, nil)
	case account.OTPMismatch:
		counter, err := d.Store.RecordFailure(ctx, acct.ID, account.CounterReset, d.Policy, now)
		if err != nil {
			return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.MapStoreError(err), nil)
		}
		if counter.Locked(now) {
			// The code is burned once the lock trips; a fresh request is needed
			// after the lock lapses.
			_ = d.Store.ClearOTP(ctx, acct.ID, account.PurposePasswordReset)
			err := d.Locked(d.Errors.AccountLocked, counter.Remaining(now))
			return d.fail(ctx, d.Metrics.Locked, d.Events.Confirm, acct.ID, err, nil)
		}
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.Errors.InvalidOTP, nil)
	}

	hash, err := d.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := d.Store.CompletePasswordReset(ctx, acct.ID, account.HashCode(code), hash, now); err != nil {
		if retry, ok := counterLocked(err, now); ok {
			err := d.Locked(d.Errors.AccountLocked, retry)
			return d.fail(ctx, d.Metrics.Locked, d.Events.Confirm, acct.ID, err, nil)
		}
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.MapStoreError(err), nil)
	}

	d.MetricInc(d.Metrics.ConfirmSuccess)
	d.EmitAudit(ctx, d.Events.Confirm, true, acct.ID, nil, nil)
	return nil
}
