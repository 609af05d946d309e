package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal"
)

type RegistrationInput struct {
	FirstName string
	LastName  string
	UserName  string
	Email     string
	Phone     string
	Password  string
}

type RegistrationMetrics struct {
	Requested      int
	Conflict       int
	Confirmed      int
	ConfirmFailure int
	Resent         int
}

type RegistrationEvents struct {
	Register string
	Confirm  string
	Resend   string
}

type RegistrationErrors struct {
	EngineNotReady  error
	AccountExists   error
	AlreadyVerified error
	OTPExpired      error
	InvalidOTP      error
	TooManyRequests error
}

type RegistrationDeps struct {
	Hooks

	Store          account.Store
	OTPDigits      int
	OTPTTL         time.Duration
	ResendCooldown time.Duration
	DefaultRole    account.Role

	NewID         func() (string, error)
	NewCode       func(int) (string, error)
	CheckPassword func(string) error
	HashPassword  func(string) (string, error)
	// SendCode emails a registration code. Errors are returned as-is.
	SendCode func(ctx context.Context, acct *account.Account, code string, ttl time.Duration) error

	Metrics RegistrationMetrics
	Events  RegistrationEvents
	Errors  RegistrationErrors
}

func normalizeRegistrationDeps(d *RegistrationDeps) {
	d.Hooks.normalize()
	if d.OTPDigits == 0 {
		d.OTPDigits = internal.DefaultCodeDigits
	}
	if d.NewID == nil {
		d.NewID = internal.NewAccountID
	}
	if d.NewCode == nil {
		d.NewCode = internal.NewNumericCode
	}
	if d.DefaultRole == "" {
		d.DefaultRole = account.RoleStandard
	}
}

// RunRegister creates a pending account and emails its confirmation code.
// When the email fails the account stays pending and the send error is
// returned; RunResendRegistrationOTP is the retry path.
func RunRegister(ctx context.Context, in RegistrationInput, d RegistrationDeps) (string, error) {
	normalizeRegistrationDeps(&d)
	if d.Store == nil || d.SendCode == nil || d.CheckPassword == nil {
		return "", d.Errors.EngineNotReady
	}

	in.Email = NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.UserName = strings.TrimSpace(in.UserName)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := validateRegistration(in, d); err != nil {
		return "", d.fail(ctx, noMetric, d.Events.Register, "", err, reason("invalid_input"))
	}
	if err := d.CheckPassword(in.Password); err != nil {
		return "", d.fail(ctx, noMetric, d.Events.Register, "", err, reason("password_policy"))
	}

	id, err := d.NewID()
	if err != nil {
		return "", err
	}
	code, err := d.NewCode(d.OTPDigits)
	if err != nil {
		return "", err
	}

	now := d.Now()
	acct := &account.Account{
		ID:              id,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		UserName:        in.UserName,
		Email:           in.Email,
		Phone:           in.Phone,
		State:           account.Unverified,
		Role:            d.DefaultRole,
		RegistrationOTP: account.NewOTP(code, now, d.OTPTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.Store.Create(ctx, acct); err != nil {
		mapped := d.MapStoreError(err)
		if errors.Is(mapped, d.Errors.AccountExists) {
			var dup *account.DuplicateError
			field := ""
			if errors.As(err, &dup) {
				field = dup.Field
			}
			return "", d.fail(ctx, d.Metrics.Conflict, d.Events.Register, "", mapped, func() map[string]string {
				return map[string]string{"field": field}
			})
		}
		return "", d.fail(ctx, noMetric, d.Events.Register, "", mapped, nil)
	}

	if err := d.SendCode(ctx, acct, code, d.OTPTTL); err != nil {
		// The pending account stays; only the undelivered code goes.
		_ = d.Store.ClearOTP(ctx, acct.ID, account.PurposeRegistration)
		return acct.ID, d.fail(ctx, noMetric, d.Events.Register, acct.ID, err, reason("email_failed"))
	}

	d.MetricInc(d.Metrics.Requested)
	d.EmitAudit(ctx, d.Events.Register, true, acct.ID, nil, nil)
	return acct.ID, nil
}

func validateRegistration(in RegistrationInput, d RegistrationDeps) error {
	switch {
	case !checkName(in.FirstName):
		return d.Invalid("firstName", "must be 2 to 50 characters")
	case !checkName(in.LastName):
		return d.Invalid("lastName", "must be 2 to 50 characters")
	case !checkUserName(in.UserName):
		return d.Invalid("userName", "must be 3 to 30 letters, digits, '_', '.' or '-'")
	case !checkEmail(in.Email):
		return d.Invalid("email", "must be a valid email address")
	case !checkPhone(in.Phone):
		return d.Invalid("phoneNumber", "must be exactly 10 digits")
	}
	return nil
}

// RunConfirmRegistration checks the emailed code, hashes the password and
// marks the account verified.
func RunConfirmRegistration(ctx context.Context, email, code, password string, d RegistrationDeps) error {
	normalizeRegistrationDeps(&d)
	if d.Store == nil || d.CheckPassword == nil || d.HashPassword == nil {
		return d.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if !checkEmail(email) {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", d.Invalid("email", "must be a valid email address"), nil)
	}
	if !internal.IsNumericCode(code, d.OTPDigits) {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", d.Invalid("otp", "must be a numeric code"), nil)
	}
	if err := d.CheckPassword(password); err != nil {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", err, reason("password_policy"))
	}

	acct, err := d.Store.ByEmail(ctx, email)
	if err != nil {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, "", d.MapStoreError(err), nil)
	}
	if acct.Verified() {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.Errors.AlreadyVerified, nil)
	}

	now := d.Now()
	switch acct.RegistrationOTP.Check(code, now) {
	case account.OTPAbsent:
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.Errors.OTPExpired, nil)
	case account.OTPMismatch:
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.Errors.InvalidOTP, nil)
	}

	hash, err := d.HashPassword(password)
	if err != nil {
		return err
	}
	if err := d.Store.ConfirmRegistration(ctx, acct.ID, account.HashCode(code), hash, now); err != nil {
		return d.fail(ctx, d.Metrics.ConfirmFailure, d.Events.Confirm, acct.ID, d.MapStoreError(err), nil)
	}

	d.MetricInc(d.Metrics.Confirmed)
	d.EmitAudit(ctx, d.Events.Confirm, true, acct.ID, nil, nil)
	return nil
}

// RunResendRegistrationOTP replaces the registration code of a pending
// account. Codes less than ResendCooldown old are not replaced.
func RunResendRegistrationOTP(ctx context.Context, email string, d RegistrationDeps) error {
	normalizeRegistrationDeps(&d)
	if d.Store == nil || d.SendCode == nil {
		return d.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if !checkEmail(email) {
		return d.fail(ctx, noMetric, d.Events.Resend, "", d.Invalid("email", "must be a valid email address"), nil)
	}

	acct, err := d.Store.ByEmail(ctx, email)
	if err != nil {
		return d.fail(ctx, noMetric, d.Events.Resend, "", d.MapStoreError(err), nil)
	}
	if acct.Verified() {
		return d.fail(ctx, noMetric, d.Events.Resend, acct.ID, d.Errors.AlreadyVerified, nil)
	}

	now := d.Now()
	if cur := acct.RegistrationOTP; cur.Live(now) {
		issued := cur.ExpiresAt.Add(-d.OTPTTL)
		if wait := issued.Add(d.ResendCooldown).Sub(now); wait > 0 {
			return d.fail(ctx, noMetric, d.Events.Resend, acct.ID, d.Locked(d.Errors.TooManyRequests, wait), reason("cooldown"))
		}
	}

	code, err := d.NewCode(d.OTPDigits)
	if err != nil {
		return err
	}
	if err := d.Store.SetOTP(ctx, acct.ID, account.PurposeRegistration, account.NewOTP(code, now, d.OTPTTL)); err != nil {
		return d.fail(ctx, noMetric, d.Events.Resend, acct.ID, d.MapStoreError(err), nil)
	}
	if err := d.SendCode(ctx, acct, code, d.OTPTTL); err != nil {
		// An undelivered code must not hold the cooldown.
		_ = d.Store.ClearOTP(ctx, acct.ID, account.PurposeRegistration)
		return d.fail(ctx, noMetric, d.Events.Resend, acct.ID, err, reason("email_failed"))
	}

	d.MetricInc(d.Metrics.Resent)
	d.EmitAudit(ctx, d.Events.Resend, true, acct.ID, nil, nil)
	return nil
}
