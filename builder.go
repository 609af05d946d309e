package falcomAuth

import (
	"errors"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	internalaudit "github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/MrEthical07/falcomAuth/jwt"
	"github.com/MrEthical07/falcomAuth/password"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	store  account.Store

	email     EmailSender
	sms       SMSSender
	captcha   CaptchaVerifier
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account backend: memstore, redisstore or pgstore.
func (b *Builder) WithStore(store account.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.email = sender
	return b
}

func (b *Builder) WithSMSSender(sender SMSSender) *Builder {
	b.sms = sender
	return b
}

func (b *Builder) WithCaptchaVerifier(v CaptchaVerifier) *Builder {
	b.captcha = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithLogger receives failures the engine cannot return to a caller, such
// as a panicking audit sink.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for OTP expiry and locks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.email == nil {
		return nil, errors.New("email sender required")
	}
	if b.sms == nil {
		return nil, errors.New("sms sender required")
	}
	if cfg.Captcha.Required && b.captcha == nil {
		return nil, errors.New("captcha verifier required when Captcha.Required is set")
	}

	ph, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}
	jm, err := jwt.NewManager(cfg.JWT.manager())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		store:        b.store,
		metrics:      NewMetrics(cfg.Metrics),
		passwordHash: ph,
		jwtManager:   jm,
		email:        b.email,
		sms:          b.sms,
		captcha:      b.captcha,
		now:          b.now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     b.logger,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
