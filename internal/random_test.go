package internal

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewNumericCodeShape(t *testing.T) {
	for _, digits := range []int{0, 4, 6, 8, 10} {
		code, err := NewNumericCode(digits)
		if err != nil {
			t.Fatalf("NewNumericCode(%d) failed: %v", digits, err)
		}
		want := digits
		if want == 0 {
			want = DefaultCodeDigits
		}
		if !IsNumericCode(code, want) {
			t.Fatalf("NewNumericCode(%d) = %q, want %d digits", digits, code, want)
		}
	}
}

func TestNewNumericCodeRejectsBadLength(t *testing.T) {
	for _, digits := range []int{-1, 3, 11} {
		if _, err := NewNumericCode(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestNewNumericCodeSpread(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		code, err := NewNumericCode(6)
		if err != nil {
			t.Fatalf("NewNumericCode failed: %v", err)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 190 {
		t.Fatalf("expected mostly distinct codes, got %d/200", len(seen))
	}
}

func TestIsNumericCode(t *testing.T) {
	cases := map[string]bool{
		"123456":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"":        false,
	}
	for in, want := range cases {
		if got := IsNumericCode(in, 6); got != want {
			t.Fatalf("IsNumericCode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewAccountID(t *testing.T) {
	id, err := NewAccountID()
	if err != nil {
		t.Fatalf("NewAccountID failed: %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("expected uuid, got %q: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected v4 uuid, got v%d", parsed.Version())
	}
}

func TestHashCodeIsStable(t *testing.T) {
	if HashCode("123456") != HashCode("123456") {
		t.Fatal("expected stable digest")
	}
	if HashCode("123456") == HashCode("123457") {
		t.Fatal("expected distinct digests")
	}
}
