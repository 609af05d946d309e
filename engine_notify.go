package falcomAuth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
)

const (
	dependencyEmail   = "email"
	dependencySMS     = "sms"
	dependencyCaptcha = "captcha"
)

func (e *Engine) dependencyFailed(name string, err error) error {
	e.metricInc(MetricDependencyFailure)
	return &DependencyError{Dependency: name, Err: err}
}

func (e *Engine) sendRegistrationCode(ctx context.Context, acct *account.Account, code string, ttl time.Duration) error {
	body := fmt.Sprintf("Your registration OTP is: %s\nIt expires in %d minutes.", code, minutes(ttl))
	return e.sendEmail(ctx, acct.Email, "Registration OTP", body)
}

func (e *Engine) sendLoginCode(ctx context.Context, acct *account.Account, code string, ttl time.Duration) error {
	body := fmt.Sprintf("Your login OTP is: %s\nIt expires in %d minutes.", code, minutes(ttl))
	return e.sendEmail(ctx, acct.Email, "Login OTP", body)
}

func (e *Engine) sendResetCode(ctx context.Context, acct *account.Account, code string, ttl time.Duration) error {
	if e.sms == nil {
		return e.dependencyFailed(dependencySMS, errors.New("no sms sender configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Dependencies.SMSTimeout)
	defer cancel()

	body := fmt.Sprintf("Your password reset OTP is %s. It expires in %d minutes.", code, minutes(ttl))
	if err := e.sms.SendSMS(ctx, acct.Phone, body); err != nil {
		return e.dependencyFailed(dependencySMS, err)
	}
	return nil
}

func (e *Engine) sendEmail(ctx context.Context, to, subject, body string) error {
	if e.email == nil {
		return e.dependencyFailed(dependencyEmail, errors.New("no email sender configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Dependencies.EmailTimeout)
	defer cancel()

	if err := e.email.SendEmail(ctx, to, subject, body); err != nil {
		return e.dependencyFailed(dependencyEmail, err)
	}
	return nil
}

// verifyCaptcha returns nil, ErrCaptchaRejected or a *DependencyError. With
// Captcha.FailOpen an unreachable verifier lets the login through.
func (e *Engine) verifyCaptcha(ctx context.Context, token string) error {
	if !e.config.Captcha.Required {
		return nil
	}
	if token == "" {
		return ErrCaptchaRejected
	}
	if e.captcha == nil {
		return e.dependencyFailed(dependencyCaptcha, errors.New("no captcha verifier configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Dependencies.CaptchaTimeout)
	defer cancel()

	ok, err := e.captcha.VerifyCaptcha(ctx, token, clientIPFromContext(ctx))
	if err != nil {
		depErr := e.dependencyFailed(dependencyCaptcha, err)
		if e.config.Captcha.FailOpen {
			e.emitAudit(ctx, auditEventCaptchaBypassed, true, "", depErr, nil)
			return nil
		}
		return depErr
	}
	if !ok {
		return ErrCaptchaRejected
	}
	return nil
}

func minutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
