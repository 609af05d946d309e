package falcomAuth

import (
	"context"
	"errors"
)

const (
	auditEventRegister             = "register"
	auditEventRegistrationConfirm  = "registration_confirm"
	auditEventRegistrationResend   = "registration_otp_resend"
	auditEventLogin                = "login"
	auditEventLoginMFA             = "login_mfa"
	auditEventPasswordHashUpgraded = "password_hash_upgraded"
	auditEventCaptchaBypassed      = "captcha_bypassed"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventTokenRefresh         = "token_refresh"
	auditEventRateLimited          = "rate_limit_triggered"
	auditEventProfileUpdated       = "profile_updated"
	auditEventAccountDeleted       = "account_deleted"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCaptchaRejected    AuditErrorCode = "captcha_rejected"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDependency         AuditErrorCode = "dependency_unavailable"
	auditErrStoreUnavailable   AuditErrorCode = "store_unavailable"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrTooManyRequests):
		return auditErrRateLimited
	case errors.Is(err, ErrCaptchaRejected):
		return auditErrCaptchaRejected
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrDependencyUnavailable):
		return auditErrDependency
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	default:
		return auditErrInternal
	}
}
