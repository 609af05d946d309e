// Package pgstore persists accounts in PostgreSQL through database/sql and
// the pgx stdlib driver. Schema changes ship as embedded goose migrations.
//
// OTP completions are single conditional UPDATE statements, so a code that was
// replaced or consumed between the read and the write is rejected by the
// database rather than by the caller. Failure counters take a row lock for the
// read-modify-write.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/store/pgstore/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

var constraintFields = map[string]string{
	"accounts_pkey":          "id",
	"accounts_email_key":     "email",
	"accounts_user_name_key": "userName",
	"accounts_phone_key":     "phoneNumber",
}

type otpColumns struct {
	hash, expires string
}

var slotColumns = map[account.OTPPurpose]otpColumns{
	account.PurposeRegistration:  {hash: "reg_otp_hash", expires: "reg_otp_expires_at"},
	account.PurposeLoginMFA:      {hash: "mfa_otp_hash", expires: "mfa_otp_expires_at"},
	account.PurposePasswordReset: {hash: "reset_otp_hash", expires: "reset_otp_expires_at"},
}

type counterColumns struct {
	count, until string
}

var counterColumnNames = map[account.CounterKind]counterColumns{
	account.CounterLogin: {count: "login_failures", until: "login_blocked_until"},
	account.CounterMFA:   {count: "otp_failures", until: "otp_blocked_until"},
	account.CounterReset: {count: "reset_failures", until: "reset_blocked_until"},
}

// Store implements account.Store on a *sql.DB.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects with the pgx driver. Call Migrate before first use.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the handle for sinks that share the connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const insertAccount = `
INSERT INTO accounts (
    id, first_name, last_name, user_name, email, phone, password_hash, verified, role,
    reg_otp_hash, reg_otp_expires_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	if acct == nil || acct.ID == "" {
		return account.ErrNotFound
	}
	now := s.now()
	created := acct.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := s.db.ExecContext(ctx, insertAccount,
		acct.ID, acct.FirstName, acct.LastName, acct.UserName, acct.Email,
		nullString(acct.Phone), acct.PasswordHash, acct.Verified(), string(acct.Role),
		digest(acct.RegistrationOTP), nullTime(acct.RegistrationOTP.ExpiresAt),
		created, now,
	)
	return writeError(err)
}

// writeError maps unique violations to *account.DuplicateError.
func writeError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		field, ok := constraintFields[pgErr.ConstraintName]
		if !ok {
			field = "id"
		}
		return &account.DuplicateError{Field: field}
	}
	return unavailable(err)
}

const selectAccount = `
SELECT id, first_name, last_name, user_name, email, phone, password_hash, verified, role,
       reg_otp_hash, reg_otp_expires_at, mfa_otp_hash, mfa_otp_expires_at,
       reset_otp_hash, reset_otp_expires_at, reset_resend_blocked_until,
       login_failures, login_blocked_until, otp_failures, otp_blocked_until,
       reset_failures, reset_blocked_until, created_at, updated_at
FROM accounts`

func (s *Store) ByID(ctx context.Context, id string) (*account.Account, error) {
	return s.queryOne(ctx, selectAccount+" WHERE id = $1", id)
}

func (s *Store) ByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.queryOne(ctx, selectAccount+" WHERE email = $1", email)
}

func (s *Store) ByPhone(ctx context.Context, phone string) (*account.Account, error) {
	if phone == "" {
		return nil, account.ErrNotFound
	}
	return s.queryOne(ctx, selectAccount+" WHERE phone = $1", phone)
}

func (s *Store) queryOne(ctx context.Context, query string, arg string) (*account.Account, error) {
	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return acct, nil
}

func (s *Store) SetOTP(ctx context.Context, id string, purpose account.OTPPurpose, otp account.OTP) error {
	c, ok := slotColumns[purpose]
	if !ok {
		return fmt.Errorf("pgstore: unknown otp purpose %d", purpose)
	}
	query := fmt.Sprintf("UPDATE accounts SET %s = $2, %s = $3, updated_at = $4 WHERE id = $1", c.hash, c.expires)
	return s.execOne(ctx, query, id, digest(otp), nullTime(otp.ExpiresAt), s.now())
}

func (s *Store) ClearOTP(ctx context.Context, id string, purpose account.OTPPurpose) error {
	c, ok := slotColumns[purpose]
	if !ok {
		return fmt.Errorf("pgstore: unknown otp purpose %d", purpose)
	}
	extra := ""
	if purpose == account.PurposePasswordReset {
		extra = ", reset_resend_blocked_until = NULL"
	}
	query := fmt.Sprintf("UPDATE accounts SET %s = NULL, %s = NULL%s, updated_at = $2 WHERE id = $1", c.hash, c.expires, extra)
	return s.execOne(ctx, query, id, s.now())
}

const issueReset = `
UPDATE accounts
SET reset_otp_hash = $2, reset_otp_expires_at = $3, reset_resend_blocked_until = $4, updated_at = $5
WHERE id = $1 AND (reset_resend_blocked_until IS NULL OR reset_resend_blocked_until <= $5)`

func (s *Store) IssueResetOTP(ctx context.Context, id string, otp account.OTP, blockUntil, now time.Time) error {
	res, err := s.db.ExecContext(ctx, issueReset, id, digest(otp), nullTime(otp.ExpiresAt), nullTime(blockUntil), now)
	if err != nil {
		return unavailable(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable(err)
	} else if n == 1 {
		return nil
	}

	var until sql.NullTime
	err = s.db.QueryRowContext(ctx, "SELECT reset_resend_blocked_until FROM accounts WHERE id = $1", id).Scan(&until)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.ErrNotFound
		}
		return unavailable(err)
	}
	return &account.ResendBlockedError{Until: until.Time.UTC()}
}

const issueLoginOTP = `
UPDATE accounts
SET mfa_otp_hash = $2, mfa_otp_expires_at = $3, login_failures = 0, login_blocked_until = NULL, updated_at = $4
WHERE id = $1 AND (login_blocked_until IS NULL OR login_blocked_until <= $4)`

func (s *Store) IssueLoginOTP(ctx context.Context, id string, otp account.OTP, now time.Time) error {
	res, err := s.db.ExecContext(ctx, issueLoginOTP, id, digest(otp), nullTime(otp.ExpiresAt), now)
	if err != nil {
		return unavailable(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return unavailable(err)
	} else if n == 1 {
		return nil
	}

	var until sql.NullTime
	err = s.db.QueryRowContext(ctx, "SELECT login_blocked_until FROM accounts WHERE id = $1", id).Scan(&until)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.ErrNotFound
		}
		return unavailable(err)
	}
	return &account.CounterLockedError{Until: until.Time.UTC()}
}

const confirmRegistration = `
UPDATE accounts
SET password_hash = $4, verified = TRUE, reg_otp_hash = NULL, reg_otp_expires_at = NULL, updated_at = $3
WHERE id = $1 AND verified = FALSE AND reg_otp_hash = $2 AND reg_otp_expires_at > $3`

func (s *Store) ConfirmRegistration(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error {
	return s.complete(ctx, id, true, "", now, confirmRegistration, id, otpHash[:], now, passwordHash)
}

const completeLoginMFA = `
UPDATE accounts
SET mfa_otp_hash = NULL, mfa_otp_expires_at = NULL, otp_failures = 0, otp_blocked_until = NULL, updated_at = $3
WHERE id = $1 AND mfa_otp_hash = $2 AND mfa_otp_expires_at > $3`

func (s *Store) CompleteLoginMFA(ctx context.Context, id string, otpHash [32]byte, now time.Time) error {
	return s.complete(ctx, id, false, "", now, completeLoginMFA, id, otpHash[:], now)
}

const completePasswordReset = `
UPDATE accounts
SET password_hash = $4, reset_otp_hash = NULL, reset_otp_expires_at = NULL,
    reset_resend_blocked_until = NULL, reset_failures = 0, reset_blocked_until = NULL, updated_at = $3
WHERE id = $1 AND reset_otp_hash = $2 AND reset_otp_expires_at > $3
  AND (reset_blocked_until IS NULL OR reset_blocked_until <= $3)`

func (s *Store) CompletePasswordReset(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error {
	return s.complete(ctx, id, false, "reset_blocked_until", now, completePasswordReset, id, otpHash[:], now, passwordHash)
}

// complete runs a conditional update and, when nothing matched, works out
// whether the account is missing, already verified, locked by lockColumn, or
// the code is stale.
func (s *Store) complete(ctx context.Context, id string, requireUnverified bool, lockColumn string, now time.Time, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 1 {
		return nil
	}

	var (
		verified bool
		until    sql.NullTime
	)
	if lockColumn == "" {
		err = s.db.QueryRowContext(ctx, "SELECT verified FROM accounts WHERE id = $1", id).Scan(&verified)
	} else {
		query := fmt.Sprintf("SELECT verified, %s FROM accounts WHERE id = $1", lockColumn)
		err = s.db.QueryRowContext(ctx, query, id).Scan(&verified, &until)
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return account.ErrNotFound
	case err != nil:
		return unavailable(err)
	case requireUnverified && verified:
		return account.ErrAlreadyVerified
	case until.Valid && until.Time.After(now):
		return &account.CounterLockedError{Until: until.Time.UTC()}
	default:
		return account.ErrOTPStale
	}
}

func (s *Store) RecordFailure(ctx context.Context, id string, kind account.CounterKind, policy account.LockPolicy, now time.Time) (account.Counter, error) {
	c, ok := counterColumnNames[kind]
	if !ok {
		return account.Counter{}, fmt.Errorf("pgstore: unknown counter %d", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return account.Counter{}, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		cur   account.Counter
		until sql.NullTime
	)
	query := fmt.Sprintf("SELECT %s, %s FROM accounts WHERE id = $1 FOR UPDATE", c.count, c.until)
	if err := tx.QueryRowContext(ctx, query, id).Scan(&cur.Count, &until); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Counter{}, account.ErrNotFound
		}
		return account.Counter{}, unavailable(err)
	}
	if until.Valid {
		cur.BlockedUntil = until.Time.UTC()
	}

	next := cur.Fail(policy, now)
	if next != cur {
		update := fmt.Sprintf("UPDATE accounts SET %s = $2, %s = $3, updated_at = $4 WHERE id = $1", c.count, c.until)
		if _, err := tx.ExecContext(ctx, update, id, next.Count, nullTime(next.BlockedUntil), now); err != nil {
			return account.Counter{}, unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return account.Counter{}, unavailable(err)
	}
	return next, nil
}

const updateProfile = `
UPDATE accounts
SET first_name = COALESCE(NULLIF($2, ''), first_name),
    last_name = COALESCE(NULLIF($3, ''), last_name),
    user_name = COALESCE(NULLIF($4, ''), user_name),
    updated_at = $5
WHERE id = $1`

func (s *Store) UpdateProfile(ctx context.Context, id string, u account.ProfileUpdate) error {
	res, err := s.db.ExecContext(ctx, updateProfile, id, u.FirstName, u.LastName, u.UserName, s.now())
	if err != nil {
		return writeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

// Delete removes the account together with its activity log rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM activity_logs WHERE user_id = $1", id); err != nil {
		return unavailable(err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) SetPasswordHash(ctx context.Context, id string, passwordHash string) error {
	return s.execOne(ctx, "UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1", id, passwordHash, s.now())
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", account.ErrUnavailable, err)
}
