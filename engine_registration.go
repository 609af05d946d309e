package falcomAuth

import (
	"context"

	"github.com/MrEthical07/falcomAuth/internal/flows"
)

// Register creates an unverified account and emails a registration code.
// The password is only checked against the policy here; it is hashed by
// ConfirmRegistration. When the email cannot be sent the account is kept
// and a *DependencyError is returned.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return flows.RunRegister(ctx, flows.RegistrationInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserName:  req.UserName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
	}, e.registrationDeps())
}

// ConfirmRegistration verifies the emailed code and stores the password.
func (e *Engine) ConfirmRegistration(ctx context.Context, email, otp, password string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunConfirmRegistration(ctx, email, otp, password, e.registrationDeps())
}

// ResendRegistrationOTP emails a fresh code to a pending account.
func (e *Engine) ResendRegistrationOTP(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunResendRegistrationOTP(ctx, email, e.registrationDeps())
}

func (e *Engine) registrationDeps() flows.RegistrationDeps {
	cfg := e.config.Registration
	return flows.RegistrationDeps{
		Hooks:          e.hooks(),
		Store:          e.store,
		OTPDigits:      cfg.OTPDigits,
		OTPTTL:         cfg.OTPTTL,
		ResendCooldown: cfg.ResendCooldown,
		DefaultRole:    cfg.DefaultRole,
		CheckPassword:  e.checkPassword,
		HashPassword:   e.passwordHash.Hash,
		SendCode:       e.sendRegistrationCode,
		Metrics: flows.RegistrationMetrics{
			Requested:      int(MetricRegistrationRequested),
			Conflict:       int(MetricRegistrationConflict),
			Confirmed:      int(MetricRegistrationConfirmed),
			ConfirmFailure: int(MetricRegistrationConfirmFailure),
			Resent:         int(MetricRegistrationOTPResent),
		},
		Events: flows.RegistrationEvents{
			Register: auditEventRegister,
			Confirm:  auditEventRegistrationConfirm,
			Resend:   auditEventRegistrationResend,
		},
		Errors: flows.RegistrationErrors{
			EngineNotReady:  ErrEngineNotReady,
			AccountExists:   ErrAccountExists,
			AlreadyVerified: ErrAlreadyVerified,
			OTPExpired:      ErrOTPExpired,
			InvalidOTP:      ErrInvalidOTP,
			TooManyRequests: ErrTooManyRequests,
		},
	}
}
