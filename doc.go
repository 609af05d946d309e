// Package falcomAuth is the authentication and account-recovery engine of the
// Falcom storefront.
//
// An [Engine] covers email-verified registration, CAPTCHA-gated password
// login followed by an emailed one-time code, per-account lockout counters,
// phone-keyed password reset, and signed session tokens with a guarded
// refresh. Build one with [New], a [Config], an account.Store backend and the
// email, SMS and CAPTCHA collaborators:
//
//	engine, err := falcomAuth.New().
//		WithConfig(cfg).
//		WithStore(redisstore.New(rdb, "fa")).
//		WithEmailSender(mailer).
//		WithSMSSender(sms).
//		WithCaptchaVerifier(verifier).
//		Build()
//
// Engine methods are safe for concurrent use. Failures are reported with the
// sentinel errors in errors.go, optionally wrapped in *ValidationError,
// *LockedError or *DependencyError; internal/httpapi maps them to HTTP
// responses.
package falcomAuth
