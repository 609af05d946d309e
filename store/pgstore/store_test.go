package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal/audit"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{
	"id", "first_name", "last_name", "user_name", "email", "phone", "password_hash", "verified", "role",
	"reg_otp_hash", "reg_otp_expires_at", "mfa_otp_hash", "mfa_otp_expires_at",
	"reset_otp_hash", "reset_otp_expires_at", "reset_resend_blocked_until",
	"login_failures", "login_blocked_until", "otp_failures", "otp_blocked_until",
	"reset_failures", "reset_blocked_until", "created_at", "updated_at",
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, time.Time) {
	db, mock := newSQLMockDB(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(db)
	s.now = func() time.Time { return now }
	return s, mock, now
}

func TestByEmailNotFound(t *testing.T) {
	s, mock, _ := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = $1")).
		WithArgs("nobody@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := s.ByEmail(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestByIDScansAccount(t *testing.T) {
	s, mock, now := newTestStore(t)
	code := account.NewOTP("123456", now, 5*time.Minute)
	blocked := now.Add(10 * time.Minute)

	rows := sqlmock.NewRows(accountCols).AddRow(
		"u1", "Ada", "Lovelace", "ada", "ada@x.com", "9800000001", "$argon2id$hash", true, "admin",
		nil, nil, code.Hash[:], code.ExpiresAt,
		nil, nil, nil,
		2, nil, 0, nil,
		3, blocked, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).WithArgs("u1").WillReturnRows(rows)

	got, err := s.ByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", got.Email)
	assert.Equal(t, account.RoleAdmin, got.Role)
	assert.True(t, got.Verified())
	assert.True(t, got.RegistrationOTP.Empty())
	assert.Equal(t, account.OTPMatch, got.LoginOTP.Check("123456", now))
	assert.Equal(t, 2, got.LoginFailures.Count)
	assert.True(t, got.ResetFailures.Locked(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	cases := map[string]string{
		"accounts_email_key":     "email",
		"accounts_user_name_key": "userName",
		"accounts_phone_key":     "phoneNumber",
	}
	for constraint, field := range cases {
		t.Run(field, func(t *testing.T) {
			s, mock, _ := newTestStore(t)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
				WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: constraint})

			err := s.Create(context.Background(), &account.Account{ID: "u1", Email: "a@x.com", UserName: "a", Role: account.RoleStandard})
			var dup *account.DuplicateError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, field, dup.Field)
			assert.ErrorIs(t, err, account.ErrDuplicate)
		})
	}
}

func TestCreateBackendFailure(t *testing.T) {
	s, mock, _ := newTestStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).WillReturnError(errors.New("connection reset"))

	err := s.Create(context.Background(), &account.Account{ID: "u1", Email: "a@x.com", UserName: "a"})
	assert.ErrorIs(t, err, account.ErrUnavailable)
}

func TestSetOTPUnknownAccount(t *testing.T) {
	s, mock, now := newTestStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET mfa_otp_hash = $2, mfa_otp_expires_at = $3")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetOTP(context.Background(), "ghost", account.PurposeLoginMFA, account.NewOTP("111111", now, time.Minute))
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestConfirmRegistrationOutcomes(t *testing.T) {
	hash := account.HashCode("123456")

	t.Run("applied", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("verified = TRUE")).
			WithArgs("u1", hash[:], now, "$argon2id$new").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.ConfirmRegistration(context.Background(), "u1", hash, "$argon2id$new", now))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("verified = TRUE")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT verified FROM accounts")).
			WillReturnRows(sqlmock.NewRows([]string{"verified"}).AddRow(false))

		err := s.ConfirmRegistration(context.Background(), "u1", hash, "x", now)
		assert.ErrorIs(t, err, account.ErrOTPStale)
	})

	t.Run("already verified", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("verified = TRUE")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT verified FROM accounts")).
			WillReturnRows(sqlmock.NewRows([]string{"verified"}).AddRow(true))

		err := s.ConfirmRegistration(context.Background(), "u1", hash, "x", now)
		assert.ErrorIs(t, err, account.ErrAlreadyVerified)
	})

	t.Run("missing", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("verified = TRUE")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT verified FROM accounts")).WillReturnError(sql.ErrNoRows)

		err := s.ConfirmRegistration(context.Background(), "u1", hash, "x", now)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})
}

func TestCompleteLoginMFAIgnoresVerifiedFlag(t *testing.T) {
	s, mock, now := newTestStore(t)
	hash := account.HashCode("654321")
	mock.ExpectExec(regexp.QuoteMeta("SET mfa_otp_hash = NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT verified FROM accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"verified"}).AddRow(true))

	err := s.CompleteLoginMFA(context.Background(), "u1", hash, now)
	assert.ErrorIs(t, err, account.ErrOTPStale)
}

func TestCompletePasswordResetGuardedByLock(t *testing.T) {
	hash := account.HashCode("565656")

	t.Run("locked", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		until := now.Add(12 * time.Minute)
		mock.ExpectExec(regexp.QuoteMeta("AND (reset_blocked_until IS NULL OR reset_blocked_until <= $3)")).
			WithArgs("u1", hash[:], now, "$argon2id$new").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT verified, reset_blocked_until FROM accounts WHERE id = $1")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"verified", "reset_blocked_until"}).AddRow(true, until))

		err := s.CompletePasswordReset(context.Background(), "u1", hash, "$argon2id$new", now)
		var locked *account.CounterLockedError
		require.ErrorAs(t, err, &locked)
		assert.True(t, locked.Until.Equal(until))
		assert.ErrorIs(t, err, account.ErrCounterLocked)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lapsed lock means stale code", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("SET password_hash = $4, reset_otp_hash = NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT verified, reset_blocked_until FROM accounts")).
			WillReturnRows(sqlmock.NewRows([]string{"verified", "reset_blocked_until"}).AddRow(true, now.Add(-time.Minute)))

		err := s.CompletePasswordReset(context.Background(), "u1", hash, "x", now)
		assert.ErrorIs(t, err, account.ErrOTPStale)
	})
}

func TestIssueLoginOTP(t *testing.T) {
	otpAt := func(now time.Time) account.OTP { return account.NewOTP("131313", now, 5*time.Minute) }

	t.Run("applied", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		otp := otpAt(now)
		mock.ExpectExec(regexp.QuoteMeta("login_failures = 0, login_blocked_until = NULL")).
			WithArgs("u1", otp.Hash[:], otp.ExpiresAt, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.IssueLoginOTP(context.Background(), "u1", otp, now))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locked", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		until := now.Add(9 * time.Minute)
		mock.ExpectExec(regexp.QuoteMeta("AND (login_blocked_until IS NULL OR login_blocked_until <= $4)")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT login_blocked_until FROM accounts")).
			WillReturnRows(sqlmock.NewRows([]string{"login_blocked_until"}).AddRow(until))

		err := s.IssueLoginOTP(context.Background(), "u1", otpAt(now), now)
		var locked *account.CounterLockedError
		require.ErrorAs(t, err, &locked)
		assert.True(t, locked.Until.Equal(until))
	})

	t.Run("missing", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("SET mfa_otp_hash = $2")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT login_blocked_until FROM accounts")).WillReturnError(sql.ErrNoRows)

		err := s.IssueLoginOTP(context.Background(), "ghost", otpAt(now), now)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})
}

func TestIssueResetOTPBlocked(t *testing.T) {
	s, mock, now := newTestStore(t)
	until := now.Add(7 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta("SET reset_otp_hash = $2")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT reset_resend_blocked_until FROM accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"reset_resend_blocked_until"}).AddRow(until))

	err := s.IssueResetOTP(context.Background(), "u1", account.NewOTP("111111", now, 10*time.Minute), now.Add(10*time.Minute), now)
	var blocked *account.ResendBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.True(t, blocked.Until.Equal(until))
}

func TestRecordFailureLocksAtThreshold(t *testing.T) {
	s, mock, now := newTestStore(t)
	policy := account.LockPolicy{Threshold: 3, Duration: 15 * time.Minute}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT login_failures, login_blocked_until FROM accounts WHERE id = $1 FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"login_failures", "login_blocked_until"}).AddRow(2, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET login_failures = $2, login_blocked_until = $3")).
		WithArgs("u1", 3, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := s.RecordFailure(context.Background(), "u1", account.CounterLogin, policy, now)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Count)
	assert.True(t, c.BlockedUntil.Equal(now.Add(15*time.Minute)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureWhileLockedWritesNothing(t *testing.T) {
	s, mock, now := newTestStore(t)
	policy := account.LockPolicy{Threshold: 3, Duration: 15 * time.Minute}
	until := now.Add(5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT otp_failures, otp_blocked_until")).
		WillReturnRows(sqlmock.NewRows([]string{"otp_failures", "otp_blocked_until"}).AddRow(3, until))
	mock.ExpectCommit()

	c, err := s.RecordFailure(context.Background(), "u1", account.CounterMFA, policy, now)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Count)
	assert.True(t, c.BlockedUntil.Equal(until))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureUnknownAccount(t *testing.T) {
	s, mock, now := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT reset_failures, reset_blocked_until")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.RecordFailure(context.Background(), "ghost", account.CounterReset, account.LockPolicy{Threshold: 3, Duration: time.Minute}, now)
	assert.ErrorIs(t, err, account.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityLogInsertsEvent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs")).
		WithArgs("login_success", "u1", "203.0.113.5", "req-7", true, nil, []byte(`{"step":"mfa"}`), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	NewActivityLog(db, nil).Emit(context.Background(), audit.Event{
		Timestamp: at,
		EventType: "login_success",
		UserID:    "u1",
		IP:        "203.0.113.5",
		RequestID: "req-7",
		Success:   true,
		Metadata:  map[string]string{"step": "mfa"},
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfile(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		s, mock, now := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("SET first_name = COALESCE(NULLIF($2, ''), first_name)")).
			WithArgs("u1", "Ada", "", "ada_l", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateProfile(context.Background(), "u1", account.ProfileUpdate{FirstName: "Ada", UserName: "ada_l"}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("user name taken", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "accounts_user_name_key"})

		err := s.UpdateProfile(context.Background(), "u1", account.ProfileUpdate{UserName: "taken"})
		var dup *account.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "userName", dup.Field)
	})

	t.Run("missing", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.UpdateProfile(context.Background(), "ghost", account.ProfileUpdate{LastName: "Byron"})
		assert.ErrorIs(t, err, account.ErrNotFound)
	})
}

func TestDeleteRemovesActivityInTransaction(t *testing.T) {
	s, mock, _ := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activity_logs WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM accounts WHERE id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRollsBack(t *testing.T) {
	s, mock, _ := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activity_logs")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM accounts")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, account.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

var activityCols = []string{
	"id", "event_type", "user_id", "ip", "request_id", "success", "error", "metadata", "occurred_at",
	"first_name", "last_name", "email", "phone",
}

func TestActivityLogList(t *testing.T) {
	db, mock := newSQLMockDB(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows(activityCols).
		AddRow(int64(9), "login_mfa", "u1", "203.0.113.5", "req-7", true, nil, []byte(`{"step":"mfa"}`), at,
			"Ada", "Lovelace", "ada@x.com", "9800000001").
		AddRow(int64(8), "account_deleted", "u2", nil, nil, false, "forbidden", nil, at.Add(-time.Minute),
			nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_logs l")).
		WithArgs("", audit.DefaultQueryLimit).
		WillReturnRows(rows)

	got, err := NewActivityLog(db, nil).List(context.Background(), audit.Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(9), got[0].ID)
	assert.Equal(t, "login_mfa", got[0].EventType)
	assert.Equal(t, map[string]string{"step": "mfa"}, got[0].Metadata)
	require.NotNil(t, got[0].User)
	assert.Equal(t, "ada@x.com", got[0].User.Email)

	assert.Equal(t, "u2", got[1].UserID)
	assert.Equal(t, "forbidden", got[1].Error)
	assert.Empty(t, got[1].IP)
	assert.Nil(t, got[1].User)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityLogListFiltersAndClamps(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_logs l")).
		WithArgs("u1", audit.MaxQueryLimit).
		WillReturnRows(sqlmock.NewRows(activityCols))

	got, err := NewActivityLog(db, nil).List(context.Background(), audit.Query{UserID: "u1", Limit: 10_000})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityLogListBackendFailure(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_logs l")).WillReturnError(errors.New("connection reset"))

	_, err := NewActivityLog(db, nil).List(context.Background(), audit.Query{})
	assert.Error(t, err)
}
