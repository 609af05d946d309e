package falcomAuth

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	internalaudit "github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/MrEthical07/falcomAuth/jwt"
)

// RegisterRequest carries the sign-up form. The password is checked against
// the policy here and supplied again on confirmation, where it is hashed.
type RegisterRequest struct {
	FirstName string
	LastName  string
	UserName  string
	Email     string
	Phone     string
	Password  string
}

// ProfileUpdateRequest edits the display fields of an account. Empty fields
// are left unchanged.
type ProfileUpdateRequest struct {
	FirstName string
	LastName  string
	UserName  string
}

// LoginRequest is the first login step.
type LoginRequest struct {
	Email        string
	Password     string
	CaptchaToken string
}

// LoginChallenge is returned after a correct password. The caller proves the
// emailed code with VerifyLoginOTP before any token exists.
type LoginChallenge struct {
	UserID    string
	ExpiresAt time.Time
}

// LoginResult is returned once the MFA code is accepted.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Profile   account.Profile
}

// TokenResult is returned by RefreshToken.
type TokenResult struct {
	Token     string
	ExpiresAt time.Time
}

// Claims are the verified contents of a session token.
type Claims = jwt.Claims

// EmailSender delivers registration and MFA codes.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers password reset codes.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, body string) error
}

// CaptchaVerifier checks a client CAPTCHA token. A false result with a nil
// error is a rejection; a non-nil error means the verifier was unreachable.
type CaptchaVerifier interface {
	VerifyCaptcha(ctx context.Context, token, remoteIP string) (bool, error)
}

// AuditEvent is one record of an authentication action.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
