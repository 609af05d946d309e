package flows

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)
	phonePattern    = regexp.MustCompile(`^[0-9]{10}$`)
)

const maxEmailLength = 254

// NormalizeEmail lower-cases and trims an address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkName(v string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	return n >= 2 && n <= 50
}

func checkUserName(v string) bool {
	return userNamePattern.MatchString(v)
}

// checkEmail accepts a bare address only; display names are rejected.
func checkEmail(v string) bool {
	if v == "" || len(v) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(v, '@')
	return at > 0 && strings.Contains(v[at+1:], ".")
}

func checkPhone(v string) bool {
	return phonePattern.MatchString(v)
}
