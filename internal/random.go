package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultCodeDigits = 6
	minCodeDigits     = 4
	maxCodeDigits     = 10
)

// NewAccountID returns a random (v4) UUID string.
func NewAccountID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewNumericCode returns a uniformly random, zero-padded decimal code.
func NewNumericCode(digits int) (string, error) {
	if digits == 0 {
		digits = DefaultCodeDigits
	}
	if digits < minCodeDigits || digits > maxCodeDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return code, nil
}

// IsNumericCode reports whether s is exactly digits ASCII digits.
func IsNumericCode(s string, digits int) bool {
	if len(s) != digits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
