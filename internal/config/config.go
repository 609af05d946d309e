// Package config loads the falcomauthd service settings from the
// environment. A .env file in the working directory is read first when
// present; variables already set in the process win.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Notifier modes.
const (
	NotifierLog  = "log"
	NotifierLive = "live"
)

type Config struct {
	Env       string
	LogLevel  string
	LogFormat string

	HTTP      HTTPConfig
	Store     StoreConfig
	Auth      AuthConfig
	Notify    NotifyConfig
	Captcha   CaptchaConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type StoreConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	PostgresDSN   string
}

type AuthConfig struct {
	JWTSecret           []byte
	JWTTTL              time.Duration
	JWTIssuer           string
	JWTAudience         string
	HideUnknownAccounts bool
}

type NotifyConfig struct {
	Mode         string
	AppName      string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMSURL       string
	SMSAPIKey    string
}

type CaptchaConfig struct {
	Required bool
	FailOpen bool
	Secret   string
	Endpoint string
	MinScore float64
}

type RateLimitConfig struct {
	LoginMax    int
	LoginWindow time.Duration
	OTPMax      int
	OTPWindow   time.Duration
}

type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	ActivityLog  bool
}

// MetricsConfig controls the OpenTelemetry pipeline. A zero interval leaves
// it off; /metrics is served either way.
type MetricsConfig struct {
	OTelLogInterval time.Duration
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. Every malformed variable is reported.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}
	cfg := &Config{
		Env:       e.str("APP_ENV", "development"),
		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", ""),
		HTTP: HTTPConfig{
			Addr:            e.str("HTTP_ADDR", ":8080"),
			ReadTimeout:     e.duration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    e.duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     e.duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  e.duration("HTTP_REQUEST_TIMEOUT", 20*time.Second),
			ShutdownTimeout: e.duration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
			CORSOrigins:     e.list("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Store: StoreConfig{
			Backend:       e.str("STORE_BACKEND", StoreMemory),
			RedisAddr:     e.str("REDIS_ADDR", ""),
			RedisPassword: e.str("REDIS_PASSWORD", ""),
			RedisDB:       e.int("REDIS_DB", 0),
			RedisPrefix:   e.str("REDIS_PREFIX", "falcom"),
			PostgresDSN:   e.str("POSTGRES_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret:           e.secret("JWT_SECRET"),
			JWTTTL:              e.duration("JWT_TTL", 24*time.Hour),
			JWTIssuer:           e.str("JWT_ISSUER", ""),
			JWTAudience:         e.str("JWT_AUDIENCE", ""),
			HideUnknownAccounts: e.bool("LOGIN_HIDE_UNKNOWN_ACCOUNTS", false),
		},
		Notify: NotifyConfig{
			Mode:         e.str("NOTIFIER", NotifierLog),
			AppName:      e.str("APP_NAME", "Falcom"),
			SMTPHost:     e.str("SMTP_HOST", ""),
			SMTPPort:     e.int("SMTP_PORT", 587),
			SMTPUser:     e.str("SMTP_USER", ""),
			SMTPPassword: e.str("SMTP_PASSWORD", ""),
			SMTPFrom:     e.str("SMTP_FROM", ""),
			SMSURL:       e.str("SMS_GATEWAY_URL", ""),
			SMSAPIKey:    e.str("SMS_GATEWAY_API_KEY", ""),
		},
		Captcha: CaptchaConfig{
			Required: e.bool("CAPTCHA_REQUIRED", true),
			FailOpen: e.bool("CAPTCHA_FAIL_OPEN", false),
			Secret:   e.str("RECAPTCHA_SECRET", ""),
			Endpoint: e.str("RECAPTCHA_ENDPOINT", ""),
			MinScore: e.float("RECAPTCHA_MIN_SCORE", 0),
		},
		RateLimit: RateLimitConfig{
			LoginMax:    e.int("RATE_LOGIN_MAX", 5),
			LoginWindow: e.duration("RATE_LOGIN_WINDOW", 15*time.Minute),
			OTPMax:      e.int("RATE_OTP_MAX", 5),
			OTPWindow:   e.duration("RATE_OTP_WINDOW", 15*time.Minute),
		},
		Audit: AuditConfig{
			KafkaBrokers: e.list("AUDIT_KAFKA_BROKERS", nil),
			KafkaTopic:   e.str("AUDIT_KAFKA_TOPIC", "falcom.auth.audit"),
			ActivityLog:  e.bool("AUDIT_ACTIVITY_LOG", true),
		},
		Metrics: MetricsConfig{
			OTelLogInterval: e.duration("METRICS_OTEL_LOG_INTERVAL", 0),
		},
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	// The activity log lives in the postgres schema.
	if cfg.Store.Backend != StorePostgres {
		cfg.Audit.ActivityLog = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Store.Backend {
	case StoreMemory:
		if c.Env == "production" {
			errs = append(errs, errors.New("STORE_BACKEND=memory is not allowed in production"))
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis store"))
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	switch c.Notify.Mode {
	case NotifierLog:
		if c.Env == "production" {
			errs = append(errs, errors.New("NOTIFIER=log is not allowed in production"))
		}
	case NotifierLive:
		if c.Notify.SMTPHost == "" || c.Notify.SMSURL == "" || c.Notify.SMSAPIKey == "" {
			errs = append(errs, errors.New("NOTIFIER=live needs SMTP_HOST, SMS_GATEWAY_URL and SMS_GATEWAY_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFIER %q", c.Notify.Mode))
	}
	if c.Captcha.Required && c.Captcha.Secret == "" {
		errs = append(errs, errors.New("RECAPTCHA_SECRET is required when CAPTCHA_REQUIRED is set"))
	}
	if c.Metrics.OTelLogInterval < 0 {
		errs = append(errs, errors.New("METRICS_OTEL_LOG_INTERVAL must not be negative"))
	}
	return errors.Join(errs...)
}

// Engine maps the service settings onto the engine defaults.
func (c *Config) Engine() falcomAuth.Config {
	cfg := falcomAuth.DefaultConfig()
	cfg.JWT.PrivateKey = append([]byte(nil), c.Auth.JWTSecret...)
	cfg.JWT.TTL = c.Auth.JWTTTL
	cfg.JWT.Issuer = c.Auth.JWTIssuer
	cfg.JWT.Audience = c.Auth.JWTAudience
	cfg.Login.HideUnknownAccounts = c.Auth.HideUnknownAccounts
	cfg.Captcha.Required = c.Captcha.Required
	cfg.Captcha.FailOpen = c.Captcha.FailOpen
	return cfg
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) str(key, fallback string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return fallback
}

func (e *env) int(key string, fallback int) int {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return fallback
	}
	return f
}

func (e *env) bool(key string, fallback bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a positive duration", key, v))
		return fallback
	}
	return d
}

func (e *env) list(key string, fallback []string) []string {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// secret accepts "base64:<data>" or a raw string.
func (e *env) secret(key string) []byte {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	if rest, found := strings.CutPrefix(v, "base64:"); found {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid base64", key))
			return nil
		}
		return b
	}
	return []byte(v)
}
