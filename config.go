package falcomAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal"
	"github.com/MrEthical07/falcomAuth/jwt"
	"github.com/MrEthical07/falcomAuth/password"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	Registration   RegistrationConfig
	Login          LoginConfig
	MFA            MFAConfig
	PasswordReset  PasswordResetConfig
	PasswordPolicy password.Policy
	Password       PasswordConfig
	JWT            JWTConfig
	Dependencies   DependencyConfig
	Captcha        CaptchaConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
}

/*
====================================
FLOW CONFIG
====================================
*/

// RegistrationConfig controls sign-up codes.
type RegistrationConfig struct {
	OTPDigits int
	OTPTTL    time.Duration
	// ResendCooldown is the minimum gap between two registration codes.
	ResendCooldown time.Duration
	DefaultRole    account.Role
}

// LoginConfig controls the password step of login.
type LoginConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
	// HideUnknownAccounts reports unknown emails and unverified accounts as
	// invalid credentials instead of not found or unverified.
	HideUnknownAccounts bool
	UpgradeHashOnLogin  bool
}

// MFAConfig controls the emailed second-factor code.
type MFAConfig struct {
	OTPDigits    int
	OTPTTL       time.Duration
	MaxAttempts  int
	LockDuration time.Duration
}

// PasswordResetConfig controls the phone-keyed reset flow.
type PasswordResetConfig struct {
	OTPDigits    int
	OTPTTL       time.Duration
	ResendBlock  time.Duration
	MaxAttempts  int
	LockDuration time.Duration
}

/*
====================================
CRYPTO CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

type JWTConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
DEPENDENCY CONFIG
====================================
*/

// DependencyConfig bounds every call to an external collaborator.
type DependencyConfig struct {
	EmailTimeout   time.Duration
	SMSTimeout     time.Duration
	CaptchaTimeout time.Duration
}

// CaptchaConfig controls how login treats the CAPTCHA verifier.
type CaptchaConfig struct {
	Required bool
	// FailOpen lets logins through when the verifier itself is unreachable.
	// A negative verdict is always enforced.
	FailOpen bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT.PrivateKey has no default.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Registration: RegistrationConfig{
			OTPDigits:      internal.DefaultCodeDigits,
			OTPTTL:         10 * time.Minute,
			ResendCooldown: time.Minute,
			DefaultRole:    account.RoleStandard,
		},
		Login: LoginConfig{
			MaxAttempts:        3,
			LockDuration:       15 * time.Minute,
			UpgradeHashOnLogin: true,
		},
		MFA: MFAConfig{
			OTPDigits:    internal.DefaultCodeDigits,
			OTPTTL:       5 * time.Minute,
			MaxAttempts:  3,
			LockDuration: 15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			OTPDigits:    internal.DefaultCodeDigits,
			OTPTTL:       10 * time.Minute,
			ResendBlock:  10 * time.Minute,
			MaxAttempts:  3,
			LockDuration: 15 * time.Minute,
		},
		PasswordPolicy: password.DefaultPolicy(),
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: pw.MaxPasswordBytes,
		},
		JWT: JWTConfig{
			TTL:           24 * time.Hour,
			SigningMethod: string(jwt.MethodHS256),
			Leeway:        30 * time.Second,
		},
		Dependencies: DependencyConfig{
			EmailTimeout:   10 * time.Second,
			SMSTimeout:     10 * time.Second,
			CaptchaTimeout: 5 * time.Second,
		},
		Captcha: CaptchaConfig{
			Required: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:           c.Memory,
		Time:             c.Time,
		Parallelism:      c.Parallelism,
		SaltLength:       c.SaltLength,
		KeyLength:        c.KeyLength,
		MaxPasswordBytes: c.MaxPasswordBytes,
	}
}

func (c JWTConfig) manager() jwt.Config {
	return jwt.Config{
		TTL:           c.TTL,
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		PrivateKey:    cloneBytes(c.PrivateKey),
		PublicKey:     cloneBytes(c.PublicKey),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
		KeyID:         c.KeyID,
	}
}

func (c LoginConfig) lockPolicy() account.LockPolicy {
	return account.LockPolicy{Threshold: c.MaxAttempts, Duration: c.LockDuration}
}

func (c MFAConfig) lockPolicy() account.LockPolicy {
	return account.LockPolicy{Threshold: c.MaxAttempts, Duration: c.LockDuration}
}

func (c PasswordResetConfig) lockPolicy() account.LockPolicy {
	return account.LockPolicy{Threshold: c.MaxAttempts, Duration: c.LockDuration}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := validateCode("Registration", c.Registration.OTPDigits, c.Registration.OTPTTL); err != nil {
		return err
	}
	if c.Registration.ResendCooldown < 0 || c.Registration.ResendCooldown > c.Registration.OTPTTL {
		return errors.New("Registration ResendCooldown must be within [0, OTPTTL]")
	}
	if !c.Registration.DefaultRole.Valid() {
		return errors.New("Registration DefaultRole is invalid")
	}

	if err := validatePolicy("Login", c.Login.lockPolicy()); err != nil {
		return err
	}

	if err := validateCode("MFA", c.MFA.OTPDigits, c.MFA.OTPTTL); err != nil {
		return err
	}
	if err := validatePolicy("MFA", c.MFA.lockPolicy()); err != nil {
		return err
	}

	if err := validateCode("PasswordReset", c.PasswordReset.OTPDigits, c.PasswordReset.OTPTTL); err != nil {
		return err
	}
	if c.PasswordReset.ResendBlock < 0 {
		return errors.New("PasswordReset ResendBlock must be >= 0")
	}
	if err := validatePolicy("PasswordReset", c.PasswordReset.lockPolicy()); err != nil {
		return err
	}

	if err := c.PasswordPolicy.Validate(); err != nil {
		return err
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < c.PasswordPolicy.MaxLength {
		return errors.New("Password MaxPasswordBytes must cover PasswordPolicy MaxLength")
	}

	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < jwt.MinHMACKeyBytes {
			return fmt.Errorf("hs256 requires a PrivateKey of at least %d bytes", jwt.MinHMACKeyBytes)
		}
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	if c.Dependencies.EmailTimeout <= 0 || c.Dependencies.SMSTimeout <= 0 || c.Dependencies.CaptchaTimeout <= 0 {
		return errors.New("Dependencies timeouts must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}

func validateCode(section string, digits int, ttl time.Duration) error {
	if digits < 4 || digits > 10 {
		return fmt.Errorf("%s OTPDigits must be between 4 and 10", section)
	}
	if ttl <= 0 {
		return fmt.Errorf("%s OTPTTL must be > 0", section)
	}
	return nil
}

func validatePolicy(section string, p account.LockPolicy) error {
	if !p.Valid() {
		return fmt.Errorf("%s MaxAttempts and LockDuration must be > 0", section)
	}
	return nil
}
