package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func legacyHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword error: %v", err)
	}
	return string(h)
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	hash := legacyHash(t, "Legacy#Pass1")

	ok, err := hasher.Verify("Legacy#Pass1", hash)
	if err != nil || !ok {
		t.Fatalf("expected legacy hash to verify: ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("Legacy#Pass2", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch without error: ok=%v err=%v", ok, err)
	}
}

func TestLegacyBcryptNeedsUpgrade(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	up, err := hasher.NeedsUpgrade(legacyHash(t, "Legacy#Pass1"))
	if err != nil || !up {
		t.Fatalf("expected bcrypt hash to need upgrade: up=%v err=%v", up, err)
	}
}

func TestIsBcrypt(t *testing.T) {
	cases := map[string]bool{
		"$2a$10$abcdefghijklmnopqrstuv": true,
		"$2b$12$abcdefghijklmnopqrstuv": true,
		"$2y$12$abcdefghijklmnopqrstuv": true,
		"$argon2id$v=19$m=65536":        false,
		"":                              false,
	}
	for in, want := range cases {
		if got := IsBcrypt(in); got != want {
			t.Fatalf("IsBcrypt(%q) = %v, want %v", in, got, want)
		}
	}
}
