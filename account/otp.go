package account

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"
)

// OTP is a stored one-time code. Only the SHA-256 of the code is kept. A zero
// ExpiresAt means the slot is empty.
type OTP struct {
	Hash      [32]byte
	ExpiresAt time.Time
}

// OTPResult is the outcome of checking a submitted code.
type OTPResult uint8

const (
	// OTPAbsent covers both "nothing on file" and "expired".
	OTPAbsent OTPResult = iota
	OTPMismatch
	OTPMatch
)

func (r OTPResult) String() string {
	switch r {
	case OTPMatch:
		return "match"
	case OTPMismatch:
		return "mismatch"
	default:
		return "absent"
	}
}

// NewOTP builds a slot for code that expires ttl after now.
func NewOTP(code string, now time.Time, ttl time.Duration) OTP {
	return OTP{
		Hash:      HashCode(code),
		ExpiresAt: now.Add(ttl),
	}
}

// HashCode is the digest stored for a code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// Empty reports whether no code was ever stored in the slot.
func (o OTP) Empty() bool {
	return o.ExpiresAt.IsZero()
}

// Live reports whether the slot holds a code that has not expired at now.
func (o OTP) Live(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.Before(o.ExpiresAt)
}

// Check compares code against the slot. An expired code is absent even when it
// matches.
func (o OTP) Check(code string, now time.Time) OTPResult {
	if !o.Live(now) {
		return OTPAbsent
	}
	provided := HashCode(code)
	if subtle.ConstantTimeCompare(provided[:], o.Hash[:]) != 1 {
		return OTPMismatch
	}
	return OTPMatch
}

// Matches reports whether the slot still holds hash and is live at now. Stores
// use it to make completions conditional.
func (o OTP) Matches(hash [32]byte, now time.Time) bool {
	if !o.Live(now) {
		return false
	}
	return subtle.ConstantTimeCompare(hash[:], o.Hash[:]) == 1
}
