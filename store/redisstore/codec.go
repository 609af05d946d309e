package redisstore

import (
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
)

const schemaVersion = "1"

func encodeAccount(a *account.Account) []interface{} {
	return []interface{}{
		"v", schemaVersion,
		"id", a.ID,
		"first", a.FirstName,
		"last", a.LastName,
		"user", a.UserName,
		"email", a.Email,
		"phone", a.Phone,
		"pwd", a.PasswordHash,
		"state", int(a.State),
		"role", string(a.Role),
		"reg_h", encodeDigest(a.RegistrationOTP),
		"reg_exp", millis(a.RegistrationOTP.ExpiresAt),
		"mfa_h", encodeDigest(a.LoginOTP),
		"mfa_exp", millis(a.LoginOTP.ExpiresAt),
		"rst_h", encodeDigest(a.ResetOTP),
		"rst_exp", millis(a.ResetOTP.ExpiresAt),
		"rst_block", millis(a.ResetResendBlockedUntil),
		"lf_n", a.LoginFailures.Count,
		"lf_until", millis(a.LoginFailures.BlockedUntil),
		"of_n", a.OTPFailures.Count,
		"of_until", millis(a.OTPFailures.BlockedUntil),
		"rf_n", a.ResetFailures.Count,
		"rf_until", millis(a.ResetFailures.BlockedUntil),
		"created", millis(a.CreatedAt),
		"updated", millis(a.UpdatedAt),
	}
}

func decodeAccount(f map[string]string) (*account.Account, error) {
	if v := f["v"]; v != schemaVersion {
		return nil, errors.New("unsupported account schema version " + strconv.Quote(v))
	}

	d := decoder{fields: f}
	a := &account.Account{
		ID:                      f["id"],
		FirstName:               f["first"],
		LastName:                f["last"],
		UserName:                f["user"],
		Email:                   f["email"],
		Phone:                   f["phone"],
		PasswordHash:            f["pwd"],
		State:                   account.VerificationState(d.int("state")),
		Role:                    account.Role(f["role"]),
		RegistrationOTP:         d.otp("reg_h", "reg_exp"),
		LoginOTP:                d.otp("mfa_h", "mfa_exp"),
		ResetOTP:                d.otp("rst_h", "rst_exp"),
		ResetResendBlockedUntil: d.time("rst_block"),
		LoginFailures:           d.counter("lf_n", "lf_until"),
		OTPFailures:             d.counter("of_n", "of_until"),
		ResetFailures:           d.counter("rf_n", "rf_until"),
		CreatedAt:               d.time("created"),
		UpdatedAt:               d.time("updated"),
	}
	if d.err != nil {
		return nil, d.err
	}
	return a, nil
}

// decoder keeps the first parse error so field reads stay linear.
type decoder struct {
	fields map[string]string
	err    error
}

func (d *decoder) int(name string) int64 {
	raw := d.fields[name]
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil && d.err == nil {
		d.err = errors.New("invalid integer field " + name)
	}
	return v
}

func (d *decoder) time(name string) time.Time {
	return fromMillis(d.int(name))
}

func (d *decoder) otp(hashField, expField string) account.OTP {
	exp := d.time(expField)
	raw := d.fields[hashField]
	if raw == "" || exp.IsZero() {
		return account.OTP{}
	}
	var out account.OTP
	n, err := hex.Decode(out.Hash[:], []byte(raw))
	if (err != nil || n != len(out.Hash)) && d.err == nil {
		d.err = errors.New("invalid otp digest field " + hashField)
		return account.OTP{}
	}
	out.ExpiresAt = exp
	return out
}

func (d *decoder) counter(countField, untilField string) account.Counter {
	return account.Counter{
		Count:        int(d.int(countField)),
		BlockedUntil: d.time(untilField),
	}
}

func encodeDigest(o account.OTP) string {
	if o.Empty() {
		return ""
	}
	return hex.EncodeToString(o.Hash[:])
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
