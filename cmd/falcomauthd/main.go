// Command falcomauthd serves the account API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/captcha"
	"github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/MrEthical07/falcomAuth/internal/config"
	"github.com/MrEthical07/falcomAuth/internal/httpapi"
	"github.com/MrEthical07/falcomAuth/internal/logging"
	"github.com/MrEthical07/falcomAuth/internal/rate"
	otelexport "github.com/MrEthical07/falcomAuth/metrics/export/otel"
	"github.com/MrEthical07/falcomAuth/metrics/export/prometheus"
	"github.com/MrEthical07/falcomAuth/notify"
	"github.com/MrEthical07/falcomAuth/store/memstore"
	"github.com/MrEthical07/falcomAuth/store/pgstore"
	"github.com/MrEthical07/falcomAuth/store/redisstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("falcomauthd stopped", zap.Error(err))
		os.Exit(1)
	}
}

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var cleanup closers
	defer cleanup.run()

	var rdb redis.UniversalClient
	if cfg.Store.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		cleanup.add(func() { _ = client.Close() })
		rdb = client
	}

	backend, err := openStore(ctx, cfg, rdb, logger, &cleanup)
	if err != nil {
		return err
	}
	store := backend.store
	sinks := append(backend.sinks, audit.NewZapSink(logger))
	if len(cfg.Audit.KafkaBrokers) > 0 {
		w := audit.NewKafkaWriter(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		cleanup.add(func() { _ = w.Close() })
		sinks = append(sinks, audit.NewKafkaSink(w, 2*time.Second, logger.Named("audit.kafka")))
		logger.Info("audit events published to kafka", zap.String("topic", cfg.Audit.KafkaTopic))
	}

	builder := falcomAuth.New().
		WithConfig(cfg.Engine()).
		WithStore(store).
		WithAuditSink(audit.MultiSink(sinks)).
		WithLogger(logger.Named("engine"))

	if err := wireNotifiers(builder, cfg, logger); err != nil {
		return err
	}
	if cfg.Captcha.Required {
		v, err := captcha.New(captcha.Config{
			Secret:   cfg.Captcha.Secret,
			Endpoint: cfg.Captcha.Endpoint,
			MinScore: cfg.Captcha.MinScore,
		}, nil)
		if err != nil {
			return fmt.Errorf("captcha: %w", err)
		}
		builder.WithCaptchaVerifier(v)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	cleanup.add(engine.Close)
	logPosture(logger, engine.SecurityReport())

	if every := cfg.Metrics.OTelLogInterval; every > 0 {
		pipeline, err := otelexport.NewLogPipeline(engine, every, logger.Named("metrics"))
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
		cleanup.add(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pipeline.Close(closeCtx); err != nil {
				logger.Warn("otel metrics shutdown", zap.Error(err))
			}
		})
		logger.Info("otel metrics pipeline started", zap.Duration("interval", every))
	}

	opts := httpapi.Options{
		Service:        engine,
		Logger:         logger,
		LoginRule:      rate.Rule{Max: cfg.RateLimit.LoginMax, Window: cfg.RateLimit.LoginWindow},
		OTPRule:        rate.Rule{Max: cfg.RateLimit.OTPMax, Window: cfg.RateLimit.OTPWindow},
		Metrics:        prometheus.New(engine).Handler(),
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Activities:     backend.activities,
	}
	if backend.activities == nil {
		logger.Info("admin activity feed disabled; it needs the postgres backend with AUDIT_ACTIVITY_LOG")
	}
	if rdb != nil {
		opts.Limiter = rate.New(rdb, cfg.Store.RedisPrefix+":")
	} else {
		logger.Warn("REDIS_ADDR not set; per-IP rate limiting disabled")
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(opts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.Store.Backend),
			zap.String("notifier", cfg.Notify.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// storeBackend is the account store plus whatever audit plumbing the backend
// brings with it.
type storeBackend struct {
	store      account.Store
	sinks      []audit.Sink
	activities audit.Reader
}

func openStore(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient, logger *zap.Logger, cleanup *closers) (storeBackend, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn("using in-memory account store; data is lost on restart")
		return storeBackend{store: memstore.New()}, nil
	case config.StoreRedis:
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return storeBackend{}, fmt.Errorf("redis ping: %w", err)
		}
		return storeBackend{store: redisstore.New(rdb, cfg.Store.RedisPrefix)}, nil
	case config.StorePostgres:
		pg, err := pgstore.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return storeBackend{}, fmt.Errorf("postgres: %w", err)
		}
		cleanup.add(func() { _ = pg.Close() })
		if err := pg.Migrate(ctx); err != nil {
			return storeBackend{}, fmt.Errorf("postgres migrate: %w", err)
		}
		out := storeBackend{store: pg}
		if cfg.Audit.ActivityLog {
			activity := pgstore.NewActivityLog(pg.DB(), logger.Named("audit.pg"))
			out.sinks = append(out.sinks, activity)
			out.activities = activity
		}
		return out, nil
	default:
		return storeBackend{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func wireNotifiers(b *falcomAuth.Builder, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Notify.Mode == config.NotifierLog {
		n := notify.NewLog(logger)
		b.WithEmailSender(n).WithSMSSender(n)
		return nil
	}

	mail, err := notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		User:     cfg.Notify.SMTPUser,
		Password: cfg.Notify.SMTPPassword,
		From:     cfg.Notify.SMTPFrom,
		AppName:  cfg.Notify.AppName,
	})
	if err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	sms, err := notify.NewSMSGateway(notify.SMSGatewayConfig{
		URL:    cfg.Notify.SMSURL,
		APIKey: cfg.Notify.SMSAPIKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	b.WithEmailSender(mail).WithSMSSender(sms)
	return nil
}

func logPosture(logger *zap.Logger, r falcomAuth.SecurityReport) {
	logger.Info("security posture",
		zap.String("jwt_alg", r.SigningAlgorithm),
		zap.Duration("jwt_ttl", r.TokenTTL),
		zap.Uint32("argon2_memory_kib", r.Argon2.Memory),
		zap.Uint32("argon2_time", r.Argon2.Time),
		zap.Bool("captcha_enforced", r.CaptchaEnforced),
		zap.Bool("login_lockout", r.LoginLockout.Active),
		zap.Bool("mfa_lockout", r.MFALockout.Active),
		zap.Bool("reset_lockout", r.ResetLockout.Active),
		zap.Bool("audit", r.AuditEnabled),
	)
	if r.CaptchaFailOpen {
		logger.Warn("captcha fails open when the verifier is unreachable")
	}
	if r.AccountEnumeration {
		logger.Warn("login reports unknown accounts; set LOGIN_HIDE_UNKNOWN_ACCOUNTS to hide them")
	}
}
