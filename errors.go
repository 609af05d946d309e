package falcomAuth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrAccountExists is returned when email, username or phone is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAlreadyVerified is returned when confirming an account that is already verified.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrAccountNotFound is returned when no account matches the lookup key.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountUnverified is returned when logging in before registration is confirmed.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrInvalidCredentials is returned on a password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOTP is returned when a live code does not match.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrOTPExpired is returned when no live code is on file.
	ErrOTPExpired = errors.New("otp expired or not requested")
	// ErrAccountLocked is wrapped by *LockedError for failure-counter locks.
	ErrAccountLocked = errors.New("too many failed attempts")
	// ErrTooManyRequests is wrapped by *LockedError for resend blocks and throttles.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrCaptchaRejected is returned when the CAPTCHA token is missing or fails verification.
	ErrCaptchaRejected = errors.New("captcha verification failed")
	// ErrPasswordPolicy is returned when a new password breaks the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrDependencyUnavailable is wrapped by every *DependencyError.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrStoreUnavailable is returned when the account store fails.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrTokenInvalid is returned for malformed, expired or forged tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUnauthorized is returned when no usable credential was presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a valid token is used for another account.
	ErrForbidden = errors.New("forbidden")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LockedError reports an active lock or throttle and how long it lasts.
type LockedError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: retry after %d minute(s)", e.Err, e.RetryAfterMinutes())
}

func (e *LockedError) Unwrap() error {
	return e.Err
}

// RetryAfterMinutes rounds RetryAfter up to whole minutes, never below one.
func (e *LockedError) RetryAfterMinutes() int {
	m := int((e.RetryAfter + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

// DependencyError reports a failed external call (mail, SMS, CAPTCHA).
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependencyUnavailable, e.Err}
}

// RetryAfter returns the lock duration carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var le *LockedError
	if errors.As(err, &le) {
		return le.RetryAfter, true
	}
	return 0, false
}
