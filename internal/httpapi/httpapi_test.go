package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/MrEthical07/falcomAuth/internal/rate"
	"github.com/MrEthical07/falcomAuth/store/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeRe = regexp.MustCompile(`\b(\d{6})\b`)

type outbox struct {
	mu   sync.Mutex
	last string
}

func (o *outbox) SendEmail(_ context.Context, _, _, body string) error {
	o.mu.Lock()
	o.last = body
	o.mu.Unlock()
	return nil
}

func (o *outbox) SendSMS(ctx context.Context, _, body string) error {
	return o.SendEmail(ctx, "", "", body)
}

func (o *outbox) code(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	m := codeRe.FindStringSubmatch(o.last)
	require.NotNil(t, m, "no code in %q", o.last)
	return m[1]
}

type passCaptcha struct{}

func (passCaptcha) VerifyCaptcha(context.Context, string, string) (bool, error) { return true, nil }

type server struct {
	engine *falcomAuth.Engine
	store  *memstore.Store
	box    *outbox
	http   *httptest.Server
}

func newServer(t *testing.T, limiter Limiter) *server {
	t.Helper()
	return newServerWith(t, limiter, nil)
}

func newServerWith(t *testing.T, limiter Limiter, activities audit.Reader) *server {
	t.Helper()
	cfg := falcomAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	box := &outbox{}
	store := memstore.New()
	engine, err := falcomAuth.New().
		WithConfig(cfg).
		WithStore(store).
		WithEmailSender(box).
		WithSMSSender(box).
		WithCaptchaVerifier(passCaptcha{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := httptest.NewServer(NewRouter(Options{
		Service:     engine,
		Limiter:     limiter,
		LoginRule:   rate.Rule{Max: 5, Window: 15 * time.Minute},
		OTPRule:     rate.Rule{Max: 5, Window: 15 * time.Minute},
		Activities:  activities,
		CORSOrigins: []string{"http://localhost:3000"},
	}))
	t.Cleanup(srv.Close)
	return &server{engine: engine, store: store, box: box, http: srv}
}

func (s *server) do(t *testing.T, method, path, body, bearer string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func jsonBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

const (
	email    = "alice@example.com"
	phone    = "9800000001"
	password = "Str0ng!Pass"
)

func (s *server) register(t *testing.T) {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/user/create", jsonBody(t, map[string]string{
		"firstName": "Alice", "lastName": "Karki", "userName": "alice_k",
		"email": email, "phoneNumber": phone, "password": password,
	}), "")
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodPost, "/api/user/verify_registration_otp", jsonBody(t, map[string]string{
		"email": email, "otp": s.box.code(t), "password": password,
	}), "")
	require.Equal(t, http.StatusOK, status, body)
}

func (s *server) login(t *testing.T) string {
	t.Helper()
	return s.loginAs(t, email)
}

func (s *server) loginAs(t *testing.T, email string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/user/login", jsonBody(t, map[string]string{
		"email": email, "password": password, "captchaToken": "tok",
	}), "")
	require.Equal(t, http.StatusOK, status, body)
	uid, _ := body["userId"].(string)
	require.NotEmpty(t, uid)

	status, body = s.do(t, http.MethodPost, "/api/user/verifyOTP", jsonBody(t, map[string]string{
		"userId": uid, "otp": s.box.code(t),
	}), "")
	require.Equal(t, http.StatusOK, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, email, user["email"])
	return token
}

func TestRegistrationLoginAndSession(t *testing.T) {
	s := newServer(t, nil)
	s.register(t)
	token := s.login(t)

	status, body := s.do(t, http.MethodGet, "/api/user/current", "", token)
	require.Equal(t, http.StatusOK, status, body)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "alice_k", user["userName"])
	assert.Equal(t, true, user["isVerified"])

	status, body = s.do(t, http.MethodPost, "/api/user/refresh-token", `{"userId":""}`, token)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["token"])

	status, _ = s.do(t, http.MethodPost, "/api/user/refresh-token", "", token)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/user/refresh-token", `{"userId":"other"}`, token)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCurrentRequiresBearer(t *testing.T) {
	s := newServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/api/user/current", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])

	status, _ = s.do(t, http.MethodGet, "/api/user/current", "", "forged")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/api/user/refresh-token", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	s.register(t)

	status, body := s.do(t, http.MethodPost, "/api/user/forgot_password", `{"phoneNumber":"`+phone+`"}`, "")
	require.Equal(t, http.StatusOK, status, body)

	status, body = s.do(t, http.MethodPost, "/api/user/forgot_password", `{"phoneNumber":"`+phone+`"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.EqualValues(t, 10, body["retryAfterMinutes"])

	status, body = s.do(t, http.MethodPost, "/api/user/verify_otp", jsonBody(t, map[string]string{
		"phoneNumber": phone, "otp": s.box.code(t), "password": "N3w&Better",
	}), "")
	require.Equal(t, http.StatusOK, status, body)

	status, _ = s.do(t, http.MethodPost, "/api/user/login", jsonBody(t, map[string]string{
		"email": email, "password": password, "captchaToken": "tok",
	}), "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestErrorStatuses(t *testing.T) {
	s := newServer(t, nil)
	s.register(t)

	status, body := s.do(t, http.MethodPost, "/api/user/create", jsonBody(t, map[string]string{
		"firstName": "Alice", "lastName": "Karki", "userName": "alice_k",
		"email": email, "phoneNumber": phone, "password": password,
	}), "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "User already exists", body["message"])

	status, _ = s.do(t, http.MethodPost, "/api/user/resend_registration_otp", `{"email":"ghost@example.com"}`, "")
	assert.Equal(t, http.StatusNotFound, status)

	bad := jsonBody(t, map[string]string{"email": email, "password": "Wr0ng!Pass", "captchaToken": "tok"})
	for i := 0; i < 2; i++ {
		status, body = s.do(t, http.MethodPost, "/api/user/login", bad, "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid email or password", body["message"])
	}
	status, body = s.do(t, http.MethodPost, "/api/user/login", bad, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.EqualValues(t, 15, body["retryAfterMinutes"])
}

func TestStrictDecoding(t *testing.T) {
	s := newServer(t, nil)
	cases := map[string]string{
		"unknown field":   `{"email":"a@example.com","isAdmin":true}`,
		"number":          `{"email":42}`,
		"array":           `{"email":["a@example.com"]}`,
		"object":          `{"email":{"$gt":""}}`,
		"trailing data":   `{"email":"a@example.com"}{"email":"b@example.com"}`,
		"not an object":   `["a@example.com"]`,
		"malformed":       `{"email":`,
		"empty":           ` `,
		"oversized value": `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			status, out := s.do(t, http.MethodPost, "/api/user/resend_registration_otp", body, "")
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, out["success"])
			assert.NotEmpty(t, out["message"])
		})
	}
}

func TestRejectsNonJSONContentType(t *testing.T) {
	s := newServer(t, nil)
	resp, err := s.http.Client().Post(s.http.URL+"/api/user/resend_registration_otp", "text/plain", bytes.NewBufferString(`{"email":"a@example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouteRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newServer(t, rate.New(rdb, "test:"))
	body := jsonBody(t, map[string]string{"email": "ghost@example.com", "password": password, "captchaToken": "tok"})

	for i := 0; i < 5; i++ {
		status, _ := s.do(t, http.MethodPost, "/api/user/login", body, "")
		require.Equal(t, http.StatusNotFound, status)
	}
	status, out := s.do(t, http.MethodPost, "/api/user/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.EqualValues(t, 15, out["retryAfterMinutes"])
	assert.EqualValues(t, 1, s.engine.MetricsSnapshot().Counters[falcomAuth.MetricRateLimitHit])

	// OTP routes have their own budget.
	status, _ = s.do(t, http.MethodPost, "/api/user/forgot_password", `{"phoneNumber":"`+phone+`"}`, "")
	assert.Equal(t, http.StatusNotFound, status)

	// A dead limiter lets requests through.
	mr.Close()
	status, _ = s.do(t, http.MethodPost, "/api/user/login", body, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	status, body := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = s.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&falcomAuth.ValidationError{Field: "email", Reason: "bad"}, http.StatusBadRequest},
		{&falcomAuth.LockedError{Err: falcomAuth.ErrAccountLocked, RetryAfter: time.Minute}, http.StatusTooManyRequests},
		{falcomAuth.ErrAccountUnverified, http.StatusForbidden},
		{falcomAuth.ErrForbidden, http.StatusForbidden},
		{errors.Join(falcomAuth.ErrTokenInvalid, errors.New("expired")), http.StatusUnauthorized},
		{&falcomAuth.DependencyError{Dependency: "email", Err: errors.New("down")}, http.StatusBadGateway},
		{falcomAuth.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{falcomAuth.ErrCaptchaRejected, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusFor(tc.err)
		assert.Equal(t, tc.status, got, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}
