// Package httpapi serves the account API under /api/user and the admin API
// under /api/admin on a chi router.
package httpapi

import (
	"context"
	"net/http"
	"time"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/MrEthical07/falcomAuth/internal/rate"
	"github.com/MrEthical07/falcomAuth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Service is the engine surface the handlers call. *falcomAuth.Engine
// implements it.
type Service interface {
	Register(ctx context.Context, req falcomAuth.RegisterRequest) (string, error)
	ConfirmRegistration(ctx context.Context, email, otp, password string) error
	ResendRegistrationOTP(ctx context.Context, email string) error
	Login(ctx context.Context, req falcomAuth.LoginRequest) (*falcomAuth.LoginChallenge, error)
	VerifyLoginOTP(ctx context.Context, userID, otp string) (*falcomAuth.LoginResult, error)
	RequestPasswordReset(ctx context.Context, phone string) error
	ConfirmPasswordReset(ctx context.Context, phone, otp, newPassword string) error
	RefreshToken(ctx context.Context, bearerToken, userID string) (*falcomAuth.TokenResult, error)
	CurrentAccount(ctx context.Context, userID string) (*account.Profile, error)
	UpdateProfile(ctx context.Context, userID string, req falcomAuth.ProfileUpdateRequest) (*account.Profile, error)
	DeleteAccount(ctx context.Context, actorID, userID string) error
	ValidateToken(ctx context.Context, token string) (*falcomAuth.Claims, error)
	RecordRateLimitHit(ctx context.Context, scope string)
	Ping(ctx context.Context) error
}

// Limiter counts requests per scope and client. *rate.Limiter implements it.
type Limiter interface {
	Check(ctx context.Context, scope, subject string, rule rate.Rule) error
}

// Options configures NewRouter. Service and Logger are required. The admin
// activity feed is mounted only when Activities is set.
type Options struct {
	Service        Service
	Logger         *zap.Logger
	Limiter        Limiter
	LoginRule      rate.Rule
	OTPRule        rate.Rule
	Metrics        http.Handler
	Activities     audit.Reader
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Rate limit scopes.
const (
	ScopeLogin = "login"
	ScopeOTP   = "otp"
)

// NewRouter wires the middleware stack and every route.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	h := &handler{svc: opts.Service, activities: opts.Activities, logger: logger}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(clientContext)
	router.Use(requestLogger(logger))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(timeout))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", h.health)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	login := rateLimit(opts.Limiter, opts.Service, logger, ScopeLogin, opts.LoginRule)
	otp := rateLimit(opts.Limiter, opts.Service, logger, ScopeOTP, opts.OTPRule)

	router.Route("/api/user", func(r chi.Router) {
		r.Post("/create", h.create)
		r.With(otp).Post("/verify_registration_otp", h.verifyRegistrationOTP)
		r.With(otp).Post("/resend_registration_otp", h.resendRegistrationOTP)
		r.With(login).Post("/login", h.login)
		r.With(otp).Post("/verifyOTP", h.verifyLoginOTP)
		r.With(otp).Post("/forgot_password", h.forgotPassword)
		r.With(otp).Post("/verify_otp", h.resetPassword)
		r.Post("/refresh-token", h.refreshToken)
		r.With(middleware.RequireAuth(opts.Service)).Get("/current", h.current)
		r.With(middleware.RequireAuth(opts.Service)).Put("/update", h.updateProfile)
	})

	router.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(opts.Service))
		if opts.Activities != nil {
			r.Get("/activities", h.listActivities)
		}
		r.Delete("/user/{userId}", h.deleteAccount)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusNotFound, envelope{"success": false, "message": "Endpoint not found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusMethodNotAllowed, envelope{"success": false, "message": "Method not allowed"})
	})
	return router
}
