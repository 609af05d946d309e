package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/MrEthical07/falcomAuth/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type handler struct {
	svc        Service
	activities audit.Reader
	logger     *zap.Logger
}

type createRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	UserName    string `json:"userName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

type confirmRegistrationRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
}

type loginOTPRequest struct {
	UserID string `json:"userId"`
	OTP    string `json:"otp"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type resetRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
	Password    string `json:"password"`
}

type refreshRequest struct {
	UserID string `json:"userId"`
}

type updateRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	UserName  string `json:"userName"`
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	_, err := h.svc.Register(r.Context(), falcomAuth.RegisterRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserName:  req.UserName,
		Email:     req.Email,
		Phone:     req.PhoneNumber,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusCreated, "User registered. Verify the OTP sent to your email", nil)
}

func (h *handler) verifyRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req confirmRegistrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.ConfirmRegistration(r.Context(), req.Email, req.OTP, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "Registration verified", nil)
}

func (h *handler) resendRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.ResendRegistrationOTP(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "A new OTP was sent to your email", nil)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ch, err := h.svc.Login(r.Context(), falcomAuth.LoginRequest{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "OTP sent to your email", envelope{"userId": ch.UserID})
}

func (h *handler) verifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req loginOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.VerifyLoginOTP(r.Context(), req.UserID, req.OTP)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "Login successful", envelope{
		"token": res.Token,
		"user":  res.Profile,
	})
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.PhoneNumber); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "OTP sent to your phone", nil)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.ConfirmPasswordReset(r.Context(), req.PhoneNumber, req.OTP, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "Password reset successful", nil)
}

func (h *handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, r, h.logger, falcomAuth.ErrUnauthorized)
		return
	}
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	res, err := h.svc.RefreshToken(r.Context(), token, req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, envelope{"success": true, "token": res.Token})
}

func (h *handler) current(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, falcomAuth.ErrUnauthorized)
		return
	}
	profile, err := h.svc.CurrentAccount(r.Context(), claims.UID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, envelope{"success": true, "user": profile})
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, falcomAuth.ErrUnauthorized)
		return
	}
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	profile, err := h.svc.UpdateProfile(r.Context(), claims.UID, falcomAuth.ProfileUpdateRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserName:  req.UserName,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "User updated successfully", envelope{"user": profile})
}

func (h *handler) listActivities(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{UserID: strings.TrimSpace(r.URL.Query().Get("userId"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, h.logger, &falcomAuth.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		q.Limit = n
	}
	records, err := h.activities.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("%w: %v", falcomAuth.ErrStoreUnavailable, err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, envelope{"success": true, "activities": records})
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, falcomAuth.ErrUnauthorized)
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), claims.UID, chi.URLParam(r, "userId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "User deleted successfully", nil)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, h.logger, http.StatusServiceUnavailable, envelope{"status": "unavailable"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, envelope{"status": "ok"})
}
