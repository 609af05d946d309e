package internaldefs

import (
	falcomAuth "github.com/MrEthical07/falcomAuth"
)

// CounterDef binds a counter MetricID to its exported name.
type CounterDef struct {
	ID   falcomAuth.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram MetricID to its exported name.
type HistogramDef struct {
	ID   falcomAuth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events dropped by the audit dispatcher.
const AuditDroppedName = "falcomauth_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: falcomAuth.MetricRegistrationRequested, Name: "falcomauth_registration_requested_total", Help: "Register calls that created a pending account."},
	{ID: falcomAuth.MetricRegistrationConflict, Name: "falcomauth_registration_conflict_total", Help: "Register calls rejected as duplicate."},
	{ID: falcomAuth.MetricRegistrationConfirmed, Name: "falcomauth_registration_confirmed_total", Help: "Completed registration confirmations."},
	{ID: falcomAuth.MetricRegistrationConfirmFailure, Name: "falcomauth_registration_confirm_failure_total", Help: "Failed registration confirmations."},
	{ID: falcomAuth.MetricRegistrationOTPResent, Name: "falcomauth_registration_otp_resent_total", Help: "Registration codes re-sent."},
	{ID: falcomAuth.MetricLoginSuccess, Name: "falcomauth_login_success_total", Help: "Password checks that passed and issued an MFA code."},
	{ID: falcomAuth.MetricLoginFailure, Name: "falcomauth_login_failure_total", Help: "Failed password checks."},
	{ID: falcomAuth.MetricLoginLocked, Name: "falcomauth_login_locked_total", Help: "Login attempts refused or triggered by the login lock."},
	{ID: falcomAuth.MetricCaptchaRejected, Name: "falcomauth_captcha_rejected_total", Help: "Logins refused by CAPTCHA."},
	{ID: falcomAuth.MetricMFAIssued, Name: "falcomauth_mfa_issued_total", Help: "MFA codes sent."},
	{ID: falcomAuth.MetricMFASuccess, Name: "falcomauth_mfa_success_total", Help: "MFA codes accepted."},
	{ID: falcomAuth.MetricMFAFailure, Name: "falcomauth_mfa_failure_total", Help: "MFA codes rejected."},
	{ID: falcomAuth.MetricMFALocked, Name: "falcomauth_mfa_locked_total", Help: "MFA attempts refused or triggered by the MFA lock."},
	{ID: falcomAuth.MetricPasswordResetRequest, Name: "falcomauth_password_reset_request_total", Help: "Reset codes sent."},
	{ID: falcomAuth.MetricPasswordResetThrottled, Name: "falcomauth_password_reset_throttled_total", Help: "Reset requests refused by the resend block or reset lock."},
	{ID: falcomAuth.MetricPasswordResetConfirmSuccess, Name: "falcomauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: falcomAuth.MetricPasswordResetConfirmFailure, Name: "falcomauth_password_reset_confirm_failure_total", Help: "Failed reset confirmations."},
	{ID: falcomAuth.MetricPasswordResetLocked, Name: "falcomauth_password_reset_locked_total", Help: "Reset confirmations refused or triggered by the reset lock."},
	{ID: falcomAuth.MetricTokenIssued, Name: "falcomauth_token_issued_total", Help: "Tokens issued after MFA."},
	{ID: falcomAuth.MetricTokenRefreshed, Name: "falcomauth_token_refreshed_total", Help: "Tokens issued by refresh."},
	{ID: falcomAuth.MetricTokenRejected, Name: "falcomauth_token_rejected_total", Help: "Tokens that failed validation."},
	{ID: falcomAuth.MetricDependencyFailure, Name: "falcomauth_dependency_failure_total", Help: "Failed mail, SMS or CAPTCHA calls."},
	{ID: falcomAuth.MetricRateLimitHit, Name: "falcomauth_rate_limit_hit_total", Help: "Requests denied by route rate limits."},
	{ID: falcomAuth.MetricPasswordHashUpgraded, Name: "falcomauth_password_hash_upgraded_total", Help: "Stored hashes upgraded after login."},
}

var HistogramDefs = []HistogramDef{
	{ID: falcomAuth.MetricValidateLatency, Name: "falcomauth_token_validate_latency_seconds", Help: "Token validation latency."},
	{ID: falcomAuth.MetricLoginLatency, Name: "falcomauth_login_latency_seconds", Help: "Login latency including the CAPTCHA call, password hash check and MFA email."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds in a form usable in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing entries.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
