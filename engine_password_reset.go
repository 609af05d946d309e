package falcomAuth

import (
	"context"

	"github.com/MrEthical07/falcomAuth/internal/flows"
)

// RequestPasswordReset texts a reset code to the account registered under
// phone. Repeat requests inside PasswordReset.ResendBlock return a
// *LockedError wrapping ErrTooManyRequests.
func (e *Engine) RequestPasswordReset(ctx context.Context, phone string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunRequestPasswordReset(ctx, phone, e.passwordResetDeps())
}

// ConfirmPasswordReset replaces the password when otp matches. The caller
// logs in again afterwards.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, phone, otp, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunConfirmPasswordReset(ctx, phone, otp, newPassword, e.passwordResetDeps())
}

func (e *Engine) passwordResetDeps() flows.PasswordResetDeps {
	cfg := e.config.PasswordReset
	return flows.PasswordResetDeps{
		Hooks:         e.hooks(),
		Store:         e.store,
		Policy:        cfg.lockPolicy(),
		OTPDigits:     cfg.OTPDigits,
		OTPTTL:        cfg.OTPTTL,
		ResendBlock:   cfg.ResendBlock,
		CheckPassword: e.checkPassword,
		HashPassword:  e.passwordHash.Hash,
		SendCode:      e.sendResetCode,
		Metrics: flows.PasswordResetMetrics{
			Request:        int(MetricPasswordResetRequest),
			Throttled:      int(MetricPasswordResetThrottled),
			ConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			ConfirmFailure: int(MetricPasswordResetConfirmFailure),
			Locked:         int(MetricPasswordResetLocked),
		},
		Events: flows.PasswordResetEvents{
			Request: auditEventPasswordResetRequest,
			Confirm: auditEventPasswordResetConfirm,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady:    ErrEngineNotReady,
			AccountUnverified: ErrAccountUnverified,
			AccountLocked:     ErrAccountLocked,
			TooManyRequests:   ErrTooManyRequests,
			OTPExpired:        ErrOTPExpired,
			InvalidOTP:        ErrInvalidOTP,
		},
	}
}
