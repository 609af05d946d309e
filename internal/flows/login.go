package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal"
)

// LoginChallenge is handed back after a correct password.
type LoginChallenge struct {
	UserID    string
	ExpiresAt time.Time
}

// LoginSession is the outcome of an accepted MFA code.
type LoginSession struct {
	Token     string
	ExpiresAt time.Time
	Account   *account.Account
}

type LoginMetrics struct {
	LoginSuccess    int
	LoginFailure    int
	LoginLocked     int
	CaptchaRejected int
	MFAIssued       int
	MFASuccess      int
	MFAFailure      int
	MFALocked       int
	TokenIssued     int
	HashUpgraded    int
}

type LoginEvents struct {
	Login        string
	MFA          string
	HashUpgraded string
}

type LoginErrors struct {
	EngineNotReady     error
	AccountNotFound    error
	AccountUnverified  error
	InvalidCredentials error
	AccountLocked      error
	CaptchaRejected    error
	OTPExpired         error
	InvalidOTP         error
}

type LoginDeps struct {
	Hooks

	Store               account.Store
	LoginPolicy         account.LockPolicy
	MFAPolicy           account.LockPolicy
	OTPDigits           int
	OTPTTL              time.Duration
	HideUnknownAccounts bool
	UpgradeHash         bool

	// VerifyCaptcha returns nil, the captcha sentinel, or a dependency error.
	VerifyCaptcha  func(ctx context.Context, token string) error
	VerifyPassword func(password, hash string) (bool, error)
	NeedsUpgrade   func(hash string) (bool, error)
	HashPassword   func(string) (string, error)
	NewCode        func(int) (string, error)
	SendCode       func(ctx context.Context, acct *account.Account, code string, ttl time.Duration) error
	IssueToken     func(uid string, role account.Role) (string, time.Time, error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(d *LoginDeps) {
	d.Hooks.normalize()
	if d.OTPDigits == 0 {
		d.OTPDigits = internal.DefaultCodeDigits
	}
	if d.NewCode == nil {
		d.NewCode = internal.NewNumericCode
	}
	if d.VerifyCaptcha == nil {
		d.VerifyCaptcha = func(context.Context, string) error { return nil }
	}
}

// RunLogin checks the CAPTCHA and password, then emails an MFA code. No
// token is issued here.
func RunLogin(ctx context.Context, email, password, captchaToken string, d LoginDeps) (LoginChallenge, error) {
	normalizeLoginDeps(&d)
	if d.Store == nil || d.VerifyPassword == nil || d.SendCode == nil {
		return LoginChallenge{}, d.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if !checkEmail(email) {
		return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginFailure, d.Events.Login, "", d.Invalid("email", "must be a valid email address"), nil)
	}
	if password == "" {
		return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginFailure, d.Events.Login, "", d.Invalid("password", "is required"), nil)
	}

	if err := d.VerifyCaptcha(ctx, strings.TrimSpace(captchaToken)); err != nil {
		metric := noMetric
		if errors.Is(err, d.Errors.CaptchaRejected) {
			metric = d.Metrics.CaptchaRejected
		}
		return LoginChallenge{}, d.fail(ctx, metric, d.Events.Login, "", err, reason("captcha"))
	}

	acct, err := d.Store.ByEmail(ctx, email)
	if err != nil {
		mapped := d.MapStoreError(err)
		if errors.Is(mapped, d.Errors.AccountNotFound) && d.HideUnknownAccounts {
			mapped = d.Errors.InvalidCredentials
		}
		return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginFailure, d.Events.Login, "", mapped, nil)
	}
	if !acct.Verified() {
		err := d.Errors.AccountUnverified
		if d.HideUnknownAccounts {
			err = d.Errors.InvalidCredentials
		}
		return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginFailure, d.Events.Login, acct.ID, err, reason("unverified"))
	}

	now := d.Now()
	if acct.LoginFailures.Locked(now) {
		err := d.Locked(d.Errors.AccountLocked, acct.LoginFailures.Remaining(now))
		return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginLocked, d.Events.Login, acct.ID, err, nil)
	}

	ok, err := d.VerifyPassword(password, acct.PasswordHash)
	if err != nil {
		return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginFailure, d.Events.Login, acct.ID, err, reason("hash_unreadable"))
	}
	if !ok {
		counter, err := d.Store.RecordFailure(ctx, acct.ID, account.CounterLogin, d.LoginPolicy, now)
		if err != nil {
			return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginFailure, d.Events.Login, acct.ID, d.MapStoreError(err), nil)
		}
		if counter.Locked(now) {
			err := d.Locked(d.Errors.AccountLocked, counter.Remaining(now))
			return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginLocked, d.Events.Login, acct.ID, err, nil)
		}
		return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginFailure, d.Events.Login, acct.ID, d.Errors.InvalidCredentials, nil)
	}

	code, err := d.NewCode(d.OTPDigits)
	if err != nil {
		return LoginChallenge{}, err
	}
	// The store refuses the code if a concurrent guess locked the account
	// after it was read above.
	otp := account.NewOTP(code, now, d.OTPTTL)
	if err := d.Store.IssueLoginOTP(ctx, acct.ID, otp, now); err != nil {
		if retry, ok := counterLocked(err, now); ok {
			err := d.Locked(d.Errors.AccountLocked, retry)
			return LoginChallenge{}, d.fail(ctx, d.Metrics.LoginLocked, d.Events.Login, acct.ID, err, nil)
		}
		return LoginChallenge{}, d.fail(ctx, noMetric, d.Events.Login, acct.ID, d.MapStoreError(err), nil)
	}
	if d.UpgradeHash {
		upgradeHash(ctx, acct, password, d)
	}
	d.MetricInc(d.Metrics.LoginSuccess)

	if err := d.SendCode(ctx, acct, code, d.OTPTTL); err != nil {
		_ = d.Store.ClearOTP(ctx, acct.ID, account.PurposeLoginMFA)
		return LoginChallenge{}, d.fail(ctx, noMetric, d.Events.Login, acct.ID, err, reason("email_failed"))
	}

	d.MetricInc(d.Metrics.MFAIssued)
	d.EmitAudit(ctx, d.Events.Login, true, acct.ID, nil, nil)
	return LoginChallenge{UserID: acct.ID, ExpiresAt: otp.ExpiresAt}, nil
}

// upgradeHash rehashes a legacy or outdated hash after a verified login.
// Failures leave the old hash in place.
func upgradeHash(ctx context.Context, acct *account.Account, password string, d LoginDeps) {
	if d.NeedsUpgrade == nil || d.HashPassword == nil {
		return
	}
	needs, err := d.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := d.HashPassword(password)
	if err != nil {
		return
	}
	if err := d.Store.SetPasswordHash(ctx, acct.ID, hash); err != nil {
		return
	}
	d.MetricInc(d.Metrics.HashUpgraded)
	d.EmitAudit(ctx, d.Events.HashUpgraded, true, acct.ID, nil, nil)
}

// RunVerifyLoginOTP checks the emailed MFA code and issues the session
// token on a match.
func RunVerifyLoginOTP(ctx context.Context, userID, code string, d LoginDeps) (LoginSession, error) {
	normalizeLoginDeps(&d)
	if d.Store == nil || d.IssueToken == nil {
		return LoginSession{}, d.Errors.EngineNotReady
	}

	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" {
		return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, "", d.Invalid("userId", "is required"), nil)
	}
	if !internal.IsNumericCode(code, d.OTPDigits) {
		return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, userID, d.Invalid("otp", "must be a numeric code"), nil)
	}

	acct, err := d.Store.ByID(ctx, userID)
	if err != nil {
		return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, userID, d.MapStoreError(err), nil)
	}
	if !acct.Verified() {
		return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, acct.ID, d.Errors.AccountUnverified, nil)
	}

	now := d.Now()
	if acct.OTPFailures.Locked(now) {
		err := d.Locked(d.Errors.AccountLocked, acct.OTPFailures.Remaining(now))
		return LoginSession{}, d.fail(ctx, d.Metrics.MFALocked, d.Events.MFA, acct.ID, err, nil)
	}

	switch acct.LoginOTP.Check(code, now) {
	case account.OTPAbsent:
		if !acct.LoginOTP.Empty() {
			_ = d.Store.ClearOTP(ctx, acct.ID, account.PurposeLoginMFA)
		}
		return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, acct.ID, d.Errors.OTPExpired, nil)
	case account.OTPMismatch:
		counter, err := d.Store.RecordFailure(ctx, acct.ID, account.CounterMFA, d.MFAPolicy, now)
		if err != nil {
			return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, acct.ID, d.MapStoreError(err), nil)
		}
		if counter.Locked(now) {
			// A locked MFA step must restart from the password.
			_ = d.Store.ClearOTP(ctx, acct.ID, account.PurposeLoginMFA)
			err := d.Locked(d.Errors.AccountLocked, counter.Remaining(now))
			return LoginSession{}, d.fail(ctx, d.Metrics.MFALocked, d.Events.MFA, acct.ID, err, nil)
		}
		return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, acct.ID, d.Errors.InvalidOTP, nil)
	}

	if err := d.Store.CompleteLoginMFA(ctx, acct.ID, account.HashCode(code), now); err != nil {
		return LoginSession{}, d.fail(ctx, d.Metrics.MFAFailure, d.Events.MFA, acct.ID, d.MapStoreError(err), nil)
	}

	token, exp, err := d.IssueToken(acct.ID, acct.Role)
	if err != nil {
		return LoginSession{}, d.fail(ctx, noMetric, d.Events.MFA, acct.ID, err, reason("token_issue_failed"))
	}

	acct.LoginOTP = account.OTP{}
	acct.OTPFailures = account.Counter{}
	d.MetricInc(d.Metrics.MFASuccess)
	d.MetricInc(d.Metrics.TokenIssued)
	d.EmitAudit(ctx, d.Events.MFA, true, acct.ID, nil, nil)
	return LoginSession{Token: token, ExpiresAt: exp, Account: acct}, nil
}
