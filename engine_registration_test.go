package falcomAuth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
)

func TestRegisterCreatesPendingAccountAndEmailsCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := h.registerRequest()
	req.Email = "  Alice@Example.COM "
	id, err := h.engine.Register(ctx, req)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	acct, err := h.store.ByEmail(ctx, testEmail)
	if err != nil {
		t.Fatalf("expected account stored under normalized email: %v", err)
	}
	if acct.ID != id || acct.Verified() || acct.PasswordHash != "" {
		t.Fatalf("expected unverified account without hash, got %+v", acct)
	}
	if acct.Role != account.RoleStandard {
		t.Fatalf("expected standard role, got %q", acct.Role)
	}
	if h.mail.count() != 1 || h.mail.sent[0].to != testEmail {
		t.Fatalf("expected one email to %s, got %+v", testEmail, h.mail.sent)
	}
	if got := acct.RegistrationOTP.ExpiresAt.Sub(h.clock.Now()); got != 10*time.Minute {
		t.Fatalf("expected 10m registration ttl, got %v", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterRequest)
		field  string
	}{
		{"short first name", func(r *RegisterRequest) { r.FirstName = "A" }, "firstName"},
		{"long last name", func(r *RegisterRequest) { r.LastName = strings.Repeat("x", 51) }, "lastName"},
		{"bad username", func(r *RegisterRequest) { r.UserName = "al ice" }, "userName"},
		{"bad email", func(r *RegisterRequest) { r.Email = "alice" }, "email"},
		{"display name email", func(r *RegisterRequest) { r.Email = "Alice <alice@example.com>" }, "email"},
		{"short phone", func(r *RegisterRequest) { r.Phone = "98000" }, "phoneNumber"},
		{"alpha phone", func(r *RegisterRequest) { r.Phone = "98000000ab" }, "phoneNumber"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			req := h.registerRequest()
			tc.mutate(&req)

			_, err := h.engine.Register(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if h.mail.count() != 0 {
				t.Fatal("expected no email on invalid input")
			}
		})
	}
}

func TestRegisterRejectsWeakPasswordBeforeCreate(t *testing.T) {
	h := newHarness(t)
	req := h.registerRequest()
	req.Password = "weak"

	if _, err := h.engine.Register(context.Background(), req); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := h.store.ByEmail(context.Background(), testEmail); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected no account created, got %v", err)
	}
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.Register(ctx, h.registerRequest()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	for name, mutate := range map[string]func(*RegisterRequest){
		"email":    func(r *RegisterRequest) { r.UserName = "other"; r.Phone = "9800000002" },
		"username": func(r *RegisterRequest) { r.Email = "bob@example.com"; r.Phone = "9800000002" },
		"phone":    func(r *RegisterRequest) { r.Email = "bob@example.com"; r.UserName = "other" },
	} {
		req := h.registerRequest()
		mutate(&req)
		if _, err := h.engine.Register(ctx, req); !errors.Is(err, ErrAccountExists) {
			t.Fatalf("%s: expected ErrAccountExists, got %v", name, err)
		}
	}
	if got := h.engine.metrics.Value(MetricRegistrationConflict); got != 3 {
		t.Fatalf("expected 3 conflicts, got %d", got)
	}
}

func TestRegisterEmailFailureKeepsPendingAccount(t *testing.T) {
	h := newHarness(t)
	h.mail.fail(errors.New("smtp down"))

	id, err := h.engine.Register(context.Background(), h.registerRequest())
	var dep *DependencyError
	if !errors.As(err, &dep) || dep.Dependency != "email" {
		t.Fatalf("expected email DependencyError, got %v", err)
	}
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if id == "" {
		t.Fatal("expected account id even when email fails")
	}
	acct, err := h.store.ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("expected pending account kept: %v", err)
	}
	if !acct.RegistrationOTP.Empty() {
		t.Fatal("expected undelivered registration code cleared")
	}
	if h.engine.metrics.Value(MetricDependencyFailure) != 1 {
		t.Fatal("expected dependency failure metric")
	}
}

func TestConfirmRegistrationHappyPath(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t)

	acct, err := h.store.ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if !acct.Verified() || !strings.HasPrefix(acct.PasswordHash, "$argon2id$") {
		t.Fatalf("expected verified account with argon2 hash, got %+v", acct)
	}
	if !acct.RegistrationOTP.Empty() {
		t.Fatal("expected registration code consumed")
	}
}

func TestConfirmRegistrationErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.Register(ctx, h.registerRequest()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	code := h.mail.lastCode(t)

	if err := h.engine.ConfirmRegistration(ctx, "nobody@example.com", code, testPassword); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := h.engine.ConfirmRegistration(ctx, testEmail, wrongCode(code), testPassword); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if err := h.engine.ConfirmRegistration(ctx, testEmail, "12ab56", testPassword); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for non-numeric code, got %v", err)
	}
	if err := h.engine.ConfirmRegistration(ctx, testEmail, code, "weakpass"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	h.clock.Advance(10 * time.Minute)
	if err := h.engine.ConfirmRegistration(ctx, testEmail, code, testPassword); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired after ttl, got %v", err)
	}
}

func TestConfirmRegistrationTwice(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t)

	err := h.engine.ConfirmRegistration(context.Background(), testEmail, "123456", testPassword)
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestResendRegistrationOTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.Register(ctx, h.registerRequest()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	first := h.mail.lastCode(t)

	err := h.engine.ResendRegistrationOTP(ctx, testEmail)
	le := requireLocked(t, err, ErrTooManyRequests)
	if le.RetryAfterMinutes() != 1 {
		t.Fatalf("expected 1 minute cooldown, got %d", le.RetryAfterMinutes())
	}

	h.clock.Advance(time.Minute)
	if err := h.engine.ResendRegistrationOTP(ctx, testEmail); err != nil {
		t.Fatalf("ResendRegistrationOTP failed: %v", err)
	}
	second := h.mail.lastCode(t)
	if h.mail.count() != 2 {
		t.Fatalf("expected two emails, got %d", h.mail.count())
	}

	if first != second {
		if err := h.engine.ConfirmRegistration(ctx, testEmail, first, testPassword); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("expected replaced code to be rejected, got %v", err)
		}
	}
	if err := h.engine.ConfirmRegistration(ctx, testEmail, second, testPassword); err != nil {
		t.Fatalf("expected new code to confirm: %v", err)
	}
	if err := h.engine.ResendRegistrationOTP(ctx, testEmail); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified after confirm, got %v", err)
	}
}

func TestResendAfterEmailFailureIsImmediate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mail.fail(errors.New("smtp down"))
	if _, err := h.engine.Register(ctx, h.registerRequest()); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// No cooldown is held by the undelivered code.
	if err := h.engine.ResendRegistrationOTP(ctx, testEmail); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected dependency error on resend, got %v", err)
	}

	h.mail.fail(nil)
	if err := h.engine.ResendRegistrationOTP(ctx, testEmail); err != nil {
		t.Fatalf("expected resend right after a failed send, got %v", err)
	}
}

func TestAuditCarriesRequestContext(t *testing.T) {
	h := newHarness(t)
	ctx := WithRequestID(WithClientIP(context.Background(), "198.51.100.4"), "req-42")
	if _, err := h.engine.Register(ctx, h.registerRequest()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	events := h.drainAudit()
	if len(events) == 0 {
		t.Fatal("expected an audit event for registration")
	}
	ev := events[len(events)-1]
	if ev.RequestID != "req-42" || ev.IP != "198.51.100.4" {
		t.Fatalf("expected request context on event, got %+v", ev)
	}
	if !ev.Success || ev.UserID == "" {
		t.Fatalf("expected a successful event with a user id, got %+v", ev)
	}
}
