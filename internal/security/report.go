package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// LockoutReport describes one attempt counter.
type LockoutReport struct {
	MaxAttempts int
	Duration    time.Duration
	Active      bool
}

type Report struct {
	SigningAlgorithm   string
	TokenTTL           time.Duration
	TokenLeeway        time.Duration
	Argon2             PasswordReport
	LegacyHashUpgrade  bool
	CaptchaEnforced    bool
	CaptchaFailOpen    bool
	AccountEnumeration bool
	LoginLockout       LockoutReport
	MFALockout         LockoutReport
	ResetLockout       LockoutReport
	ResetResendBlock   time.Duration
	AuditEnabled       bool
	AuditDropsWhenFull bool
}

type ReportInput struct {
	SigningAlgorithm    string
	TokenTTL            time.Duration
	TokenLeeway         time.Duration
	Password            PasswordReport
	UpgradeHashOnLogin  bool
	CaptchaRequired     bool
	CaptchaFailOpen     bool
	HideUnknownAccounts bool
	LoginMaxAttempts    int
	LoginLockDuration   time.Duration
	MFAMaxAttempts      int
	MFALockDuration     time.Duration
	ResetMaxAttempts    int
	ResetLockDuration   time.Duration
	ResetResendBlock    time.Duration
	AuditEnabled        bool
	AuditDropIfFull     bool
}

func BuildReport(input ReportInput) Report {
	return Report{
		SigningAlgorithm:   input.SigningAlgorithm,
		TokenTTL:           input.TokenTTL,
		TokenLeeway:        input.TokenLeeway,
		Argon2:             input.Password,
		LegacyHashUpgrade:  input.UpgradeHashOnLogin,
		CaptchaEnforced:    input.CaptchaRequired && !input.CaptchaFailOpen,
		CaptchaFailOpen:    input.CaptchaRequired && input.CaptchaFailOpen,
		AccountEnumeration: !input.HideUnknownAccounts,
		LoginLockout:       lockout(input.LoginMaxAttempts, input.LoginLockDuration),
		MFALockout:         lockout(input.MFAMaxAttempts, input.MFALockDuration),
		ResetLockout:       lockout(input.ResetMaxAttempts, input.ResetLockDuration),
		ResetResendBlock:   input.ResetResendBlock,
		AuditEnabled:       input.AuditEnabled,
		AuditDropsWhenFull: input.AuditEnabled && input.AuditDropIfFull,
	}
}

func lockout(max int, d time.Duration) LockoutReport {
	return LockoutReport{MaxAttempts: max, Duration: d, Active: max > 0 && d > 0}
}
