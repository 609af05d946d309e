// Package redisstore persists accounts as Redis hashes. Every multi-field
// mutation runs as a Lua script so counters and OTP slots change atomically
// even when several service instances share the same Redis.
package redisstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "fa"

type otpFields struct {
	hash, exp string
}

type counterFields struct {
	count, until string
}

var slotFields = map[account.OTPPurpose]otpFields{
	account.PurposeRegistration:  {hash: "reg_h", exp: "reg_exp"},
	account.PurposeLoginMFA:      {hash: "mfa_h", exp: "mfa_exp"},
	account.PurposePasswordReset: {hash: "rst_h", exp: "rst_exp"},
}

var counterFieldNames = map[account.CounterKind]counterFields{
	account.CounterLogin: {count: "lf_n", until: "lf_until"},
	account.CounterMFA:   {count: "of_n", until: "of_until"},
	account.CounterReset: {count: "rf_n", until: "rf_until"},
}

// Store implements account.Store on a Redis client.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New returns a Store that namespaces keys under prefix ("fa" when empty).
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) accountKey(id string) string { return s.prefix + ":acct:" + id }
func (s *Store) emailKey(email string) string { return s.prefix + ":email:" + email }
func (s *Store) userKey(userName string) string { return s.prefix + ":user:" + userName }
func (s *Store) phoneKey(phone string) string {
	if phone == "" {
		return ""
	}
	return s.prefix + ":phone:" + phone
}

func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	if acct == nil || acct.ID == "" {
		return account.ErrNotFound
	}
	cp := acct.Clone()
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	err := createLua.Run(ctx, s.redis,
		[]string{s.accountKey(cp.ID), s.emailKey(cp.Email), s.userKey(cp.UserName), s.phoneKey(cp.Phone)},
		encodeAccount(cp)...,
	).Err()
	if err != nil {
		if field, ok := strings.CutPrefix(err.Error(), "dup:"); ok {
			return &account.DuplicateError{Field: field}
		}
		return unavailable(err)
	}
	return nil
}

func (s *Store) ByID(ctx context.Context, id string) (*account.Account, error) {
	fields, err := s.redis.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, account.ErrNotFound
	}
	acct, err := decodeAccount(fields)
	if err != nil {
		return nil, unavailable(err)
	}
	return acct, nil
}

func (s *Store) ByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.byIndex(ctx, s.emailKey(email))
}

func (s *Store) ByPhone(ctx context.Context, phone string) (*account.Account, error) {
	if phone == "" {
		return nil, account.ErrNotFound
	}
	return s.byIndex(ctx, s.phoneKey(phone))
}

func (s *Store) byIndex(ctx context.Context, key string) (*account.Account, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return s.ByID(ctx, id)
}

func (s *Store) SetOTP(ctx context.Context, id string, purpose account.OTPPurpose, otp account.OTP) error {
	f, ok := slotFields[purpose]
	if !ok {
		return fmt.Errorf("redisstore: unknown otp purpose %d", purpose)
	}
	return s.update(ctx, id, f.hash, encodeDigest(otp), f.exp, millis(otp.ExpiresAt))
}

func (s *Store) ClearOTP(ctx context.Context, id string, purpose account.OTPPurpose) error {
	f, ok := slotFields[purpose]
	if !ok {
		return fmt.Errorf("redisstore: unknown otp purpose %d", purpose)
	}
	args := []interface{}{f.hash, "", f.exp, int64(0)}
	if purpose == account.PurposePasswordReset {
		args = append(args, "rst_block", int64(0))
	}
	return s.update(ctx, id, args...)
}

func (s *Store) IssueResetOTP(ctx context.Context, id string, otp account.OTP, blockUntil, now time.Time) error {
	err := issueResetLua.Run(ctx, s.redis, []string{s.accountKey(id)},
		encodeDigest(otp), millis(otp.ExpiresAt), millis(blockUntil), millis(now),
	).Err()
	if err == nil {
		return nil
	}
	if raw, ok := strings.CutPrefix(err.Error(), "blocked:"); ok {
		ms, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return unavailable(parseErr)
		}
		return &account.ResendBlockedError{Until: fromMillis(ms)}
	}
	return mapScriptError(err)
}

func (s *Store) IssueLoginOTP(ctx context.Context, id string, otp account.OTP, now time.Time) error {
	return mapScriptError(issueLoginLua.Run(ctx, s.redis, []string{s.accountKey(id)},
		encodeDigest(otp), millis(otp.ExpiresAt), millis(now),
	).Err())
}

func (s *Store) ConfirmRegistration(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error {
	return s.complete(ctx, id, account.PurposeRegistration, otpHash, now, true, "",
		"pwd", passwordHash,
		"state", int(account.Verified),
		"reg_h", "",
		"reg_exp", int64(0),
		"updated", millis(now),
	)
}

func (s *Store) CompleteLoginMFA(ctx context.Context, id string, otpHash [32]byte, now time.Time) error {
	return s.complete(ctx, id, account.PurposeLoginMFA, otpHash, now, false, "",
		"mfa_h", "",
		"mfa_exp", int64(0),
		"of_n", 0,
		"of_until", int64(0),
		"updated", millis(now),
	)
}

func (s *Store) CompletePasswordReset(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error {
	return s.complete(ctx, id, account.PurposePasswordReset, otpHash, now, false, counterFieldNames[account.CounterReset].until,
		"pwd", passwordHash,
		"rst_h", "",
		"rst_exp", int64(0),
		"rst_block", int64(0),
		"rf_n", 0,
		"rf_until", int64(0),
		"updated", millis(now),
	)
}

func (s *Store) complete(
	ctx context.Context,
	id string,
	purpose account.OTPPurpose,
	otpHash [32]byte,
	now time.Time,
	requireUnverified bool,
	lockField string,
	writes ...interface{},
) error {
	f := slotFields[purpose]
	guard := "0"
	if requireUnverified {
		guard = "1"
	}
	args := append([]interface{}{f.hash, f.exp, hex.EncodeToString(otpHash[:]), millis(now), guard, lockField}, writes...)
	return mapScriptError(completeLua.Run(ctx, s.redis, []string{s.accountKey(id)}, args...).Err())
}

func (s *Store) RecordFailure(ctx context.Context, id string, kind account.CounterKind, policy account.LockPolicy, now time.Time) (account.Counter, error) {
	f, ok := counterFieldNames[kind]
	if !ok {
		return account.Counter{}, fmt.Errorf("redisstore: unknown counter %d", kind)
	}
	res, err := recordFailureLua.Run(ctx, s.redis, []string{s.accountKey(id)},
		f.count, f.until, policy.Threshold, policy.Duration.Milliseconds(), millis(now),
	).Int64Slice()
	if err != nil {
		return account.Counter{}, mapScriptError(err)
	}
	if len(res) != 2 {
		return account.Counter{}, fmt.Errorf("%w: unexpected counter reply", account.ErrUnavailable)
	}
	return account.Counter{Count: int(res[0]), BlockedUntil: fromMillis(res[1])}, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, u account.ProfileUpdate) error {
	pairs := []interface{}{s.userKey("")}
	if u.FirstName != "" {
		pairs = append(pairs, "first", u.FirstName)
	}
	if u.LastName != "" {
		pairs = append(pairs, "last", u.LastName)
	}
	userIndex := ""
	if u.UserName != "" {
		userIndex = s.userKey(u.UserName)
		pairs = append(pairs, "user", u.UserName)
	}
	pairs = append(pairs, "updated", millis(s.now()))

	err := updateProfileLua.Run(ctx, s.redis, []string{s.accountKey(id), userIndex}, pairs...).Err()
	if err != nil && strings.HasPrefix(err.Error(), "dup:") {
		return &account.DuplicateError{Field: strings.TrimPrefix(err.Error(), "dup:")}
	}
	return mapScriptError(err)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return mapScriptError(deleteLua.Run(ctx, s.redis, []string{s.accountKey(id)},
		s.emailKey(""), s.userKey(""), s.prefix+":phone:",
	).Err())
}

func (s *Store) SetPasswordHash(ctx context.Context, id string, passwordHash string) error {
	return s.update(ctx, id, "pwd", passwordHash)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, id string, pairs ...interface{}) error {
	pairs = append(pairs, "updated", millis(s.now()))
	return mapScriptError(updateLua.Run(ctx, s.redis, []string{s.accountKey(id)}, pairs...).Err())
}

func mapScriptError(err error) error {
	if err == nil {
		return nil
	}
	if raw, ok := strings.CutPrefix(err.Error(), "locked:"); ok {
		ms, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return unavailable(parseErr)
		}
		return &account.CounterLockedError{Until: fromMillis(ms)}
	}
	switch err.Error() {
	case "not_found":
		return account.ErrNotFound
	case "stale":
		return account.ErrOTPStale
	case "verified":
		return account.ErrAlreadyVerified
	default:
		return unavailable(err)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", account.ErrUnavailable, err)
}
