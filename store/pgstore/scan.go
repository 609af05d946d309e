package pgstore

import (
	"database/sql"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		a                              account.Account
		phone                          sql.NullString
		verified                       bool
		role                           string
		regHash, mfaHash, rstHash      []byte
		regExp, mfaExp, rstExp, rstBlk sql.NullTime
		lfUntil, ofUntil, rfUntil      sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.UserName, &a.Email, &phone, &a.PasswordHash, &verified, &role,
		&regHash, &regExp, &mfaHash, &mfaExp,
		&rstHash, &rstExp, &rstBlk,
		&a.LoginFailures.Count, &lfUntil, &a.OTPFailures.Count, &ofUntil,
		&a.ResetFailures.Count, &rfUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Phone = phone.String
	a.Role = account.Role(role)
	if verified {
		a.State = account.Verified
	}
	a.RegistrationOTP = otpFrom(regHash, regExp)
	a.LoginOTP = otpFrom(mfaHash, mfaExp)
	a.ResetOTP = otpFrom(rstHash, rstExp)
	a.ResetResendBlockedUntil = timeFrom(rstBlk)
	a.LoginFailures.BlockedUntil = timeFrom(lfUntil)
	a.OTPFailures.BlockedUntil = timeFrom(ofUntil)
	a.ResetFailures.BlockedUntil = timeFrom(rfUntil)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func otpFrom(hash []byte, exp sql.NullTime) account.OTP {
	var o account.OTP
	if len(hash) != len(o.Hash) || !exp.Valid {
		return o
	}
	copy(o.Hash[:], hash)
	o.ExpiresAt = exp.Time.UTC()
	return o
}

func timeFrom(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func digest(o account.OTP) []byte {
	if o.Empty() {
		return nil
	}
	return o.Hash[:]
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
