package account

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestOTPCheck(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	otp := NewOTP("123456", now, 10*time.Minute)

	cases := []struct {
		name string
		code string
		at   time.Time
		want OTPResult
	}{
		{name: "match", code: "123456", at: now.Add(time.Minute), want: OTPMatch},
		{name: "mismatch", code: "654321", at: now.Add(time.Minute), want: OTPMismatch},
		{name: "correct after expiry", code: "123456", at: now.Add(10 * time.Minute), want: OTPAbsent},
		{name: "wrong after expiry", code: "000000", at: now.Add(11 * time.Minute), want: OTPAbsent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := otp.Check(tc.code, tc.at); got != tc.want {
				t.Fatalf("Check(%q) = %s, want %s", tc.code, got, tc.want)
			}
		})
	}
}

func TestOTPEmptySlotIsAbsent(t *testing.T) {
	var otp OTP
	if !otp.Empty() {
		t.Fatal("expected zero slot to be empty")
	}
	if got := otp.Check("123456", time.Now()); got != OTPAbsent {
		t.Fatalf("expected absent, got %s", got)
	}
}

func TestOTPMatchesIsConditional(t *testing.T) {
	now := time.Now()
	otp := NewOTP("111111", now, time.Minute)

	if !otp.Matches(HashCode("111111"), now) {
		t.Fatal("expected live slot to match its hash")
	}
	if otp.Matches(HashCode("222222"), now) {
		t.Fatal("expected different hash not to match")
	}
	if otp.Matches(HashCode("111111"), now.Add(time.Minute)) {
		t.Fatal("expected expired slot not to match")
	}
}

func TestProfileOmitsSecrets(t *testing.T) {
	a := &Account{
		ID:           "u1",
		Email:        "alice@x.com",
		PasswordHash: "$argon2id$secret",
		Role:         RoleStandard,
		State:        Verified,
		LoginOTP:     NewOTP("123456", time.Now(), time.Minute),
	}

	raw, err := json.Marshal(a.Profile())
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	if strings.Contains(string(raw), "argon2id") || strings.Contains(strings.ToLower(string(raw)), "password") {
		t.Fatalf("profile leaked password material: %s", raw)
	}
	if !strings.Contains(string(raw), `"isVerified":true`) {
		t.Fatalf("expected verified flag in profile: %s", raw)
	}
}
