package falcomAuth

import "github.com/MrEthical07/falcomAuth/internal/security"

// SecurityReport summarizes which protections the engine enforces.
type SecurityReport = security.Report

// SecurityReport derives the posture summary from the engine configuration.
func (e *Engine) SecurityReport() SecurityReport {
	c := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: c.JWT.SigningMethod,
		TokenTTL:         c.JWT.TTL,
		TokenLeeway:      c.JWT.Leeway,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		UpgradeHashOnLogin:  c.Login.UpgradeHashOnLogin,
		CaptchaRequired:     c.Captcha.Required,
		CaptchaFailOpen:     c.Captcha.FailOpen,
		HideUnknownAccounts: c.Login.HideUnknownAccounts,
		LoginMaxAttempts:    c.Login.MaxAttempts,
		LoginLockDuration:   c.Login.LockDuration,
		MFAMaxAttempts:      c.MFA.MaxAttempts,
		MFALockDuration:     c.MFA.LockDuration,
		ResetMaxAttempts:    c.PasswordReset.MaxAttempts,
		ResetLockDuration:   c.PasswordReset.LockDuration,
		ResetResendBlock:    c.PasswordReset.ResendBlock,
		AuditEnabled:        c.Audit.Enabled,
		AuditDropIfFull:     c.Audit.DropIfFull,
	})
}
