package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrPolicy is wrapped by every *PolicyError.
var ErrPolicy = errors.New("password does not meet policy")

// Policy describes the composition rules for new passwords. Lengths count
// runes.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires 8 to 128 characters with upper, lower, digit and
// symbol classes present.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     128,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Validate rejects contradictory bounds.
func (p Policy) Validate() error {
	if p.MinLength < 1 {
		return errors.New("password policy min length must be >= 1")
	}
	if p.MaxLength < p.MinLength {
		return errors.New("password policy max length must be >= min length")
	}
	return nil
}

// PolicyError lists every rule a password broke.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "password must " + strings.Join(e.Violations, ", ")
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicy
}

// Check returns nil or a *PolicyError naming every violated rule.
func (p Policy) Check(password string) error {
	var (
		n                           int
		upper, lower, digit, symbol bool
	)
	for _, r := range password {
		n++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var v []string
	if n < p.MinLength {
		v = append(v, fmt.Sprintf("be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		v = append(v, fmt.Sprintf("be at most %d characters", p.MaxLength))
	}
	if p.RequireUpper && !upper {
		v = append(v, "contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		v = append(v, "contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		v = append(v, "contain a digit")
	}
	if p.RequireSymbol && !symbol {
		v = append(v, "contain a special character")
	}
	if len(v) == 0 {
		return nil
	}
	return &PolicyError{Violations: v}
}
