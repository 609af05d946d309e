package falcomAuth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/store/memstore"
)

const (
	testPassword    = "Str0ng!Pass"
	testNewPassword = "N3w&Better"
	testEmail       = "alice@example.com"
	testPhone       = "9800000001"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

type sentMessage struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeMailer) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeMailer) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	m := codePattern.FindStringSubmatch(f.sent[len(f.sent)-1].body)
	if m == nil {
		t.Fatalf("no code in message %q", f.sent[len(f.sent)-1].body)
	}
	return m[1]
}

type fakeSMS struct {
	fakeMailer
}

func (f *fakeSMS) SendSMS(ctx context.Context, phone, body string) error {
	return f.SendEmail(ctx, phone, "", body)
}

type fakeCaptcha struct {
	mu     sync.Mutex
	ok     bool
	err    error
	calls  int
	lastIP string
}

func (f *fakeCaptcha) VerifyCaptcha(_ context.Context, _ string, remoteIP string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastIP = remoteIP
	return f.ok, f.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine  *Engine
	store   account.Store
	mail    *fakeMailer
	sms     *fakeSMS
	captcha *fakeCaptcha
	clock   *testClock
	audit   *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = false
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	return newHarnessWithStore(t, memstore.New(), mutate...)
}

func newHarnessWithStore(t *testing.T, store account.Store, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		store:   store,
		mail:    &fakeMailer{},
		sms:     &fakeSMS{},
		captcha: &fakeCaptcha{ok: true},
		clock:   &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		audit:   NewChannelSink(256),
	}

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithEmailSender(h.mail).
		WithSMSSender(h.sms).
		WithCaptchaVerifier(h.captcha).
		WithAuditSink(h.audit).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) registerRequest() RegisterRequest {
	return RegisterRequest{
		FirstName: "Alice",
		LastName:  "Karki",
		UserName:  "alice_k",
		Email:     testEmail,
		Phone:     testPhone,
		Password:  testPassword,
	}
}

// registerVerified registers and confirms the default account.
func (h *harness) registerVerified(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	id, err := h.engine.Register(ctx, h.registerRequest())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := h.engine.ConfirmRegistration(ctx, testEmail, h.mail.lastCode(t), testPassword); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
	return id
}

// login runs the password step and returns the emailed MFA code.
func (h *harness) login(t *testing.T) (string, string) {
	t.Helper()
	ch, err := h.engine.Login(context.Background(), LoginRequest{Email: testEmail, Password: testPassword, CaptchaToken: "ok"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return ch.UserID, h.mail.lastCode(t)
}

func (h *harness) token(t *testing.T) (string, string) {
	t.Helper()
	uid, code := h.login(t)
	res, err := h.engine.VerifyLoginOTP(context.Background(), uid, code)
	if err != nil {
		t.Fatalf("VerifyLoginOTP failed: %v", err)
	}
	return uid, res.Token
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func requireLocked(t *testing.T, err error, sentinel error) *LockedError {
	t.Helper()
	var le *LockedError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LockedError, got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected lock to wrap %v, got %v", sentinel, err)
	}
	return le
}

// drainAudit collects the events emitted so far.
func (h *harness) drainAudit() []AuditEvent {
	var out []AuditEvent
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-h.audit.Events():
			out = append(out, ev)
		case <-time.After(20 * time.Millisecond):
			return out
		case <-deadline:
			return out
		}
	}
}
