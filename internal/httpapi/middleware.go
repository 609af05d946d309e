package httpapi

import (
	"errors"
	"net"
	"net/http"
	"time"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"github.com/MrEthical07/falcomAuth/internal/rate"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// clientContext copies the request id and client IP into the context the
// engine reads for audit events and CAPTCHA checks.
func clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := falcomAuth.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		ctx = falcomAuth.WithClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.String("remote_ip", clientIP(r)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// rateLimit applies rule per client IP. When the limiter itself fails the
// request is let through and the failure is logged.
func rateLimit(l Limiter, svc Service, logger *zap.Logger, scope string, rule rate.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil || !rule.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := l.Check(r.Context(), scope, clientIP(r), rule)
			var limited *rate.LimitedError
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.As(err, &limited):
				if svc != nil {
					svc.RecordRateLimitHit(r.Context(), scope)
				}
				locked := &falcomAuth.LockedError{Err: falcomAuth.ErrTooManyRequests, RetryAfter: limited.RetryAfter}
				writeError(w, r, logger, locked)
			default:
				logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
			}
		})
	}
}
