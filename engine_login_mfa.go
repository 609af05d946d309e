package falcomAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/falcomAuth/internal/flows"
)

// Login verifies the CAPTCHA and password and emails an MFA code. The
// returned challenge names the account to pass to VerifyLoginOTP.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginChallenge, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	ch, err := flows.RunLogin(ctx, req.Email, req.Password, req.CaptchaToken, e.loginDeps())
	if err != nil {
		return nil, err
	}
	return &LoginChallenge{UserID: ch.UserID, ExpiresAt: ch.ExpiresAt}, nil
}

// VerifyLoginOTP accepts the emailed MFA code and issues a session token.
func (e *Engine) VerifyLoginOTP(ctx context.Context, userID, otp string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	sess, err := flows.RunVerifyLoginOTP(ctx, userID, otp, e.loginDeps())
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		Profile:   sess.Account.Profile(),
	}, nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		Hooks:               e.hooks(),
		Store:               e.store,
		LoginPolicy:         e.config.Login.lockPolicy(),
		MFAPolicy:           e.config.MFA.lockPolicy(),
		OTPDigits:           e.config.MFA.OTPDigits,
		OTPTTL:              e.config.MFA.OTPTTL,
		HideUnknownAccounts: e.config.Login.HideUnknownAccounts,
		UpgradeHash:         e.config.Login.UpgradeHashOnLogin,
		VerifyCaptcha:       e.verifyCaptcha,
		VerifyPassword:      e.passwordHash.Verify,
		NeedsUpgrade:        e.passwordHash.NeedsUpgrade,
		HashPassword:        e.passwordHash.Hash,
		SendCode:            e.sendLoginCode,
		IssueToken:          e.issueToken,
		Metrics: flows.LoginMetrics{
			LoginSuccess:    int(MetricLoginSuccess),
			LoginFailure:    int(MetricLoginFailure),
			LoginLocked:     int(MetricLoginLocked),
			CaptchaRejected: int(MetricCaptchaRejected),
			MFAIssued:       int(MetricMFAIssued),
			MFASuccess:      int(MetricMFASuccess),
			MFAFailure:      int(MetricMFAFailure),
			MFALocked:       int(MetricMFALocked),
			TokenIssued:     int(MetricTokenIssued),
			HashUpgraded:    int(MetricPasswordHashUpgraded),
		},
		Events: flows.LoginEvents{
			Login:        auditEventLogin,
			MFA:          auditEventLoginMFA,
			HashUpgraded: auditEventPasswordHashUpgraded,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			AccountNotFound:    ErrAccountNotFound,
			AccountUnverified:  ErrAccountUnverified,
			InvalidCredentials: ErrInvalidCredentials,
			AccountLocked:      ErrAccountLocked,
			CaptchaRejected:    ErrCaptchaRejected,
			OTPExpired:         ErrOTPExpired,
			InvalidOTP:         ErrInvalidOTP,
		},
	}
}
