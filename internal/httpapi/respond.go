package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"go.uber.org/zap"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, logger *zap.Logger, status int, message string, fields envelope) {
	body := envelope{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, logger, status, body)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, message := statusFor(err)
	body := envelope{"success": false, "message": message}

	var locked *falcomAuth.LockedError
	if errors.As(err, &locked) {
		minutes := locked.RetryAfterMinutes()
		body["retryAfterMinutes"] = minutes
		w.Header().Set("Retry-After", fmt.Sprint(minutes*60))
	}

	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Debug("request rejected", fields...)
	}
	writeJSON(w, logger, status, body)
}

// statusFor maps engine errors to a status and a client-safe message.
func statusFor(err error) (int, string) {
	var (
		ve     *falcomAuth.ValidationError
		locked *falcomAuth.LockedError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, capitalize(ve.Error())
	case errors.As(err, &locked):
		if errors.Is(err, falcomAuth.ErrAccountLocked) {
			return http.StatusTooManyRequests, fmt.Sprintf("Too many failed attempts. Try again in %d minute(s)", locked.RetryAfterMinutes())
		}
		return http.StatusTooManyRequests, fmt.Sprintf("Too many requests. Try again in %d minute(s)", locked.RetryAfterMinutes())
	case errors.Is(err, falcomAuth.ErrTooManyRequests), errors.Is(err, falcomAuth.ErrAccountLocked):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, falcomAuth.ErrPasswordPolicy):
		return http.StatusBadRequest, capitalize(err.Error())
	case errors.Is(err, falcomAuth.ErrAccountExists):
		return http.StatusConflict, "User already exists"
	case errors.Is(err, falcomAuth.ErrAlreadyVerified):
		return http.StatusConflict, "Account already verified"
	case errors.Is(err, falcomAuth.ErrAccountNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, falcomAuth.ErrInvalidCredentials):
		return http.StatusBadRequest, "Invalid email or password"
	case errors.Is(err, falcomAuth.ErrInvalidOTP):
		return http.StatusBadRequest, "Invalid OTP"
	case errors.Is(err, falcomAuth.ErrOTPExpired):
		return http.StatusBadRequest, "OTP expired or not requested"
	case errors.Is(err, falcomAuth.ErrCaptchaRejected):
		return http.StatusBadRequest, "CAPTCHA verification failed"
	case errors.Is(err, falcomAuth.ErrAccountUnverified):
		return http.StatusForbidden, "Account not verified"
	case errors.Is(err, falcomAuth.ErrTokenInvalid):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, falcomAuth.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, falcomAuth.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, falcomAuth.ErrDependencyUnavailable):
		return http.StatusBadGateway, "Could not reach a required service. Please retry"
	case errors.Is(err, falcomAuth.ErrStoreUnavailable), errors.Is(err, falcomAuth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
