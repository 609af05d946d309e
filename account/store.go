package account

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by lookups and mutations on unknown accounts.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned by Create when a unique identity field is taken.
	ErrDuplicate = errors.New("account identity already registered")
	// ErrAlreadyVerified is returned by ConfirmRegistration on verified accounts.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrOTPStale is returned when a conditional completion finds the OTP slot
	// changed, expired, or already consumed.
	ErrOTPStale = errors.New("otp no longer live")
	// ErrResendBlocked is returned by IssueResetOTP while the resend block is active.
	ErrResendBlocked = errors.New("otp resend blocked")
	// ErrCounterLocked is returned by guarded writes while the guarding
	// failure counter is locked.
	ErrCounterLocked = errors.New("account counter locked")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("account store unavailable")
)

// DuplicateError names the identity field that collided.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already registered", e.Field)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// ResendBlockedError carries the active resend block.
type ResendBlockedError struct {
	Until time.Time
}

func (e *ResendBlockedError) Error() string {
	return "otp resend blocked until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *ResendBlockedError) Unwrap() error {
	return ErrResendBlocked
}

// CounterLockedError carries the lock that refused a guarded write.
type CounterLockedError struct {
	Until time.Time
}

func (e *CounterLockedError) Error() string {
	return "account counter locked until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *CounterLockedError) Unwrap() error {
	return ErrCounterLocked
}

// Store persists accounts. Every mutation applies to a single account and must
// be atomic with respect to concurrent mutations of that account.
type Store interface {
	// Create inserts a new account. Email, UserName and a non-empty Phone must
	// be unique; collisions return a *DuplicateError.
	Create(ctx context.Context, acct *Account) error

	ByID(ctx context.Context, id string) (*Account, error)
	ByEmail(ctx context.Context, email string) (*Account, error)
	ByPhone(ctx context.Context, phone string) (*Account, error)

	// SetOTP replaces the slot for purpose, invalidating any earlier code.
	SetOTP(ctx context.Context, id string, purpose OTPPurpose, otp OTP) error
	// ClearOTP empties the slot for purpose. For PurposePasswordReset it also
	// lifts the resend block.
	ClearOTP(ctx context.Context, id string, purpose OTPPurpose) error

	// IssueResetOTP stores a reset code and sets the resend block unless a
	// block is active at now, in which case it returns a *ResendBlockedError.
	IssueResetOTP(ctx context.Context, id string, otp OTP, blockUntil, now time.Time) error

	// ConfirmRegistration stores passwordHash, marks the account verified and
	// clears the registration slot, provided the account is unverified and the
	// slot still holds otpHash at now.
	ConfirmRegistration(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error
	// IssueLoginOTP stores the MFA code and zeroes the login counter unless
	// the login counter is locked at now, in which case it returns a
	// *CounterLockedError and writes nothing.
	IssueLoginOTP(ctx context.Context, id string, otp OTP, now time.Time) error
	// CompleteLoginMFA clears the login slot and the MFA counter, provided the
	// slot still holds otpHash at now.
	CompleteLoginMFA(ctx context.Context, id string, otpHash [32]byte, now time.Time) error
	// CompletePasswordReset stores passwordHash, clears the reset slot and
	// resend block, and resets the reset counter, provided the slot still holds
	// otpHash at now. A reset counter locked at now wins over a matching code
	// and yields a *CounterLockedError.
	CompletePasswordReset(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error

	// RecordFailure applies Counter.Fail to the counter for kind in one atomic
	// step and returns the stored result.
	RecordFailure(ctx context.Context, id string, kind CounterKind, policy LockPolicy, now time.Time) (Counter, error)
	// UpdateProfile writes the non-empty fields of u. A UserName held by
	// another account returns a *DuplicateError and writes nothing.
	UpdateProfile(ctx context.Context, id string, u ProfileUpdate) error
	// Delete removes the account and releases its email, user name and phone.
	Delete(ctx context.Context, id string) error

	// SetPasswordHash replaces the hash of a verified account.
	SetPasswordHash(ctx context.Context, id string, passwordHash string) error

	Ping(ctx context.Context) error
}
