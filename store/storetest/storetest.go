// Package storetest holds the behavioral suite every account.Store backend must
// pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) account.Store

var policy = account.LockPolicy{Threshold: 3, Duration: 15 * time.Minute}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("CreateAndLookup", func(t *testing.T) { testCreateAndLookup(t, newStore(t)) })
	t.Run("CreateRejectsDuplicates", func(t *testing.T) { testCreateRejectsDuplicates(t, newStore(t)) })
	t.Run("UnknownAccount", func(t *testing.T) { testUnknownAccount(t, newStore(t)) })
	t.Run("SetOTPReplacesPrevious", func(t *testing.T) { testSetOTPReplacesPrevious(t, newStore(t)) })
	t.Run("ConfirmRegistration", func(t *testing.T) { testConfirmRegistration(t, newStore(t)) })
	t.Run("CompleteLoginMFA", func(t *testing.T) { testCompleteLoginMFA(t, newStore(t)) })
	t.Run("IssueResetOTPHonorsBlock", func(t *testing.T) { testIssueResetOTPHonorsBlock(t, newStore(t)) })
	t.Run("CompletePasswordReset", func(t *testing.T) { testCompletePasswordReset(t, newStore(t)) })
	t.Run("CompletePasswordResetRefusedWhileLocked", func(t *testing.T) { testCompletePasswordResetRefusedWhileLocked(t, newStore(t)) })
	t.Run("IssueLoginOTPHonorsLock", func(t *testing.T) { testIssueLoginOTPHonorsLock(t, newStore(t)) })
	t.Run("RecordFailureLocks", func(t *testing.T) { testRecordFailureLocks(t, newStore(t)) })
	t.Run("RecordFailureConcurrent", func(t *testing.T) { testRecordFailureConcurrent(t, newStore(t)) })
	t.Run("CountersIndependent", func(t *testing.T) { testCountersIndependent(t, newStore(t)) })
	t.Run("UpdateProfile", func(t *testing.T) { testUpdateProfile(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
}

// Seed returns an unverified account with unique identity fields derived from
// suffix.
func Seed(suffix string) *account.Account {
	return &account.Account{
		ID:        "acct-" + suffix,
		FirstName: "Alice",
		LastName:  "Smith",
		UserName:  "alice_" + suffix,
		Email:     "alice+" + suffix + "@x.com",
		Phone:     phoneFor(suffix),
		Role:      account.RoleStandard,
		State:     account.Unverified,
		CreatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func phoneFor(suffix string) string {
	digits := []byte("9800000000")
	for i := 0; i < len(suffix) && i < 4; i++ {
		digits[len(digits)-1-i] = '0' + suffix[i]%10
	}
	return string(digits)
}

func mustCreate(t *testing.T, s account.Store, a *account.Account) {
	t.Helper()
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("Create(%s) failed: %v", a.ID, err)
	}
}

func mustGet(t *testing.T, s account.Store, id string) *account.Account {
	t.Helper()
	a, err := s.ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ByID(%s) failed: %v", id, err)
	}
	return a
}

func testCreateAndLookup(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("1")
	mustCreate(t, s, seed)

	byEmail, err := s.ByEmail(ctx, seed.Email)
	if err != nil {
		t.Fatalf("ByEmail failed: %v", err)
	}
	if byEmail.ID != seed.ID || byEmail.UserName != seed.UserName || byEmail.Role != account.RoleStandard {
		t.Fatalf("unexpected account by email: %+v", byEmail)
	}
	if byEmail.State != account.Unverified || byEmail.PasswordHash != "" {
		t.Fatalf("expected unverified account without hash, got %+v", byEmail)
	}

	byPhone, err := s.ByPhone(ctx, seed.Phone)
	if err != nil {
		t.Fatalf("ByPhone failed: %v", err)
	}
	if byPhone.ID != seed.ID {
		t.Fatalf("expected %s by phone, got %s", seed.ID, byPhone.ID)
	}
}

func testCreateRejectsDuplicates(t *testing.T, s account.Store) {
	seed := Seed("2")
	mustCreate(t, s, seed)

	dupEmail := Seed("3")
	dupEmail.Email = seed.Email
	err := s.Create(context.Background(), dupEmail)
	var dup *account.DuplicateError
	if !errors.As(err, &dup) || dup.Field != "email" {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if !errors.Is(err, account.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	dupUser := Seed("4")
	dupUser.UserName = seed.UserName
	if err := s.Create(context.Background(), dupUser); !errors.As(err, &dup) || dup.Field != "userName" {
		t.Fatalf("expected duplicate userName, got %v", err)
	}

	dupPhone := Seed("5")
	dupPhone.Phone = seed.Phone
	if err := s.Create(context.Background(), dupPhone); !errors.As(err, &dup) || dup.Field != "phoneNumber" {
		t.Fatalf("expected duplicate phoneNumber, got %v", err)
	}

	// A rejected create must not leave partial index entries behind.
	fresh := Seed("6")
	mustCreate(t, s, fresh)
}

func testUnknownAccount(t *testing.T, s account.Store) {
	ctx := context.Background()
	if _, err := s.ByID(ctx, "missing"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from ByID, got %v", err)
	}
	if _, err := s.ByEmail(ctx, "missing@x.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from ByEmail, got %v", err)
	}
	if _, err := s.ByPhone(ctx, "1111111111"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from ByPhone, got %v", err)
	}
	if _, err := s.RecordFailure(ctx, "missing", account.CounterLogin, policy, time.Now()); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from RecordFailure, got %v", err)
	}
}

func testSetOTPReplacesPrevious(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("7")
	mustCreate(t, s, seed)
	now := time.Now()

	first := account.NewOTP("111111", now, 5*time.Minute)
	second := account.NewOTP("222222", now, 5*time.Minute)
	if err := s.SetOTP(ctx, seed.ID, account.PurposeLoginMFA, first); err != nil {
		t.Fatalf("SetOTP(first) failed: %v", err)
	}
	if err := s.SetOTP(ctx, seed.ID, account.PurposeLoginMFA, second); err != nil {
		t.Fatalf("SetOTP(second) failed: %v", err)
	}

	got := mustGet(t, s, seed.ID)
	if got.LoginOTP.Check("111111", now) != account.OTPMismatch {
		t.Fatal("expected first code to be invalidated")
	}
	if got.LoginOTP.Check("222222", now) != account.OTPMatch {
		t.Fatal("expected second code to be live")
	}
	if !got.RegistrationOTP.Empty() || !got.ResetOTP.Empty() {
		t.Fatal("expected other slots untouched")
	}

	if err := s.ClearOTP(ctx, seed.ID, account.PurposeLoginMFA); err != nil {
		t.Fatalf("ClearOTP failed: %v", err)
	}
	if !mustGet(t, s, seed.ID).LoginOTP.Empty() {
		t.Fatal("expected login slot cleared")
	}
}

func testConfirmRegistration(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("8")
	now := time.Now()
	seed.RegistrationOTP = account.NewOTP("123456", now, 10*time.Minute)
	mustCreate(t, s, seed)

	err := s.ConfirmRegistration(ctx, seed.ID, account.HashCode("000000"), "hash", now)
	if !errors.Is(err, account.ErrOTPStale) {
		t.Fatalf("expected ErrOTPStale for wrong hash, got %v", err)
	}

	if err := s.ConfirmRegistration(ctx, seed.ID, account.HashCode("123456"), "hash-1", now); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
	got := mustGet(t, s, seed.ID)
	if got.State != account.Verified || got.PasswordHash != "hash-1" || !got.RegistrationOTP.Empty() {
		t.Fatalf("unexpected account after confirmation: %+v", got)
	}

	err = s.ConfirmRegistration(ctx, seed.ID, account.HashCode("123456"), "hash-2", now)
	if !errors.Is(err, account.ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func testCompleteLoginMFA(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("9")
	mustCreate(t, s, seed)
	now := time.Now()

	if _, err := s.RecordFailure(ctx, seed.ID, account.CounterMFA, policy, now); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := s.SetOTP(ctx, seed.ID, account.PurposeLoginMFA, account.NewOTP("424242", now, 5*time.Minute)); err != nil {
		t.Fatalf("SetOTP failed: %v", err)
	}

	expired := now.Add(6 * time.Minute)
	if err := s.CompleteLoginMFA(ctx, seed.ID, account.HashCode("424242"), expired); !errors.Is(err, account.ErrOTPStale) {
		t.Fatalf("expected ErrOTPStale after expiry, got %v", err)
	}

	if err := s.CompleteLoginMFA(ctx, seed.ID, account.HashCode("424242"), now); err != nil {
		t.Fatalf("CompleteLoginMFA failed: %v", err)
	}
	got := mustGet(t, s, seed.ID)
	if !got.LoginOTP.Empty() || got.OTPFailures.Count != 0 {
		t.Fatalf("expected cleared OTP and counter, got %+v", got)
	}

	if err := s.CompleteLoginMFA(ctx, seed.ID, account.HashCode("424242"), now); !errors.Is(err, account.ErrOTPStale) {
		t.Fatalf("expected replay to fail with ErrOTPStale, got %v", err)
	}
}

func testIssueResetOTPHonorsBlock(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("10")
	mustCreate(t, s, seed)
	now := time.Now()

	otp := account.NewOTP("111111", now, 10*time.Minute)
	if err := s.IssueResetOTP(ctx, seed.ID, otp, now.Add(10*time.Minute), now); err != nil {
		t.Fatalf("IssueResetOTP failed: %v", err)
	}

	// The OTP has expired but the block has not.
	later := now.Add(9 * time.Minute)
	err := s.IssueResetOTP(ctx, seed.ID, account.NewOTP("222222", later, time.Second), later.Add(10*time.Minute), later)
	var blocked *account.ResendBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected ResendBlockedError, got %v", err)
	}
	if blocked.Until.Unix() != now.Add(10*time.Minute).Unix() {
		t.Fatalf("unexpected block expiry %v", blocked.Until)
	}
	if mustGet(t, s, seed.ID).ResetOTP.Check("111111", now) != account.OTPMatch {
		t.Fatal("expected original reset code to survive the blocked request")
	}

	after := now.Add(11 * time.Minute)
	if err := s.IssueResetOTP(ctx, seed.ID, account.NewOTP("333333", after, 10*time.Minute), after.Add(10*time.Minute), after); err != nil {
		t.Fatalf("IssueResetOTP after block failed: %v", err)
	}

	if err := s.ClearOTP(ctx, seed.ID, account.PurposePasswordReset); err != nil {
		t.Fatalf("ClearOTP failed: %v", err)
	}
	cleared := mustGet(t, s, seed.ID)
	if !cleared.ResetOTP.Empty() || !cleared.ResetResendBlockedUntil.IsZero() {
		t.Fatalf("expected reset slot and block cleared, got %+v", cleared)
	}
}

func testCompletePasswordReset(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("11")
	seed.State = account.Verified
	seed.PasswordHash = "old"
	mustCreate(t, s, seed)
	now := time.Now()

	if err := s.IssueResetOTP(ctx, seed.ID, account.NewOTP("777777", now, 10*time.Minute), now.Add(10*time.Minute), now); err != nil {
		t.Fatalf("IssueResetOTP failed: %v", err)
	}
	if _, err := s.RecordFailure(ctx, seed.ID, account.CounterReset, policy, now); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	if err := s.CompletePasswordReset(ctx, seed.ID, account.HashCode("000000"), "new", now); !errors.Is(err, account.ErrOTPStale) {
		t.Fatalf("expected ErrOTPStale for wrong hash, got %v", err)
	}
	if err := s.CompletePasswordReset(ctx, seed.ID, account.HashCode("777777"), "new", now); err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}

	got := mustGet(t, s, seed.ID)
	if got.PasswordHash != "new" {
		t.Fatalf("expected new hash, got %q", got.PasswordHash)
	}
	if !got.ResetOTP.Empty() || !got.ResetResendBlockedUntil.IsZero() || got.ResetFailures.Count != 0 {
		t.Fatalf("expected reset state cleared, got %+v", got)
	}
}

func testCompletePasswordResetRefusedWhileLocked(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("15")
	seed.State = account.Verified
	seed.PasswordHash = "old"
	mustCreate(t, s, seed)
	now := time.Now().Truncate(time.Second)

	if err := s.IssueResetOTP(ctx, seed.ID, account.NewOTP("565656", now, 10*time.Minute), now.Add(10*time.Minute), now); err != nil {
		t.Fatalf("IssueResetOTP failed: %v", err)
	}
	for i := 0; i < policy.Threshold; i++ {
		if _, err := s.RecordFailure(ctx, seed.ID, account.CounterReset, policy, now); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	// The correct code loses to the lock.
	err := s.CompletePasswordReset(ctx, seed.ID, account.HashCode("565656"), "new", now.Add(time.Second))
	var locked *account.CounterLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected CounterLockedError, got %v", err)
	}
	if !errors.Is(err, account.ErrCounterLocked) {
		t.Fatalf("expected ErrCounterLocked, got %v", err)
	}
	if locked.Until.Unix() != now.Add(policy.Duration).Unix() {
		t.Fatalf("unexpected lock expiry %v", locked.Until)
	}
	if got := mustGet(t, s, seed.ID); got.PasswordHash != "old" {
		t.Fatalf("expected password untouched while locked, got %q", got.PasswordHash)
	}
}

func testIssueLoginOTPHonorsLock(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("16")
	seed.State = account.Verified
	mustCreate(t, s, seed)
	now := time.Now().Truncate(time.Second)

	if _, err := s.RecordFailure(ctx, seed.ID, account.CounterLogin, policy, now); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := s.IssueLoginOTP(ctx, seed.ID, account.NewOTP("131313", now, 5*time.Minute), now); err != nil {
		t.Fatalf("IssueLoginOTP failed: %v", err)
	}
	got := mustGet(t, s, seed.ID)
	if got.LoginOTP.Check("131313", now) != account.OTPMatch {
		t.Fatal("expected MFA code stored")
	}
	if got.LoginFailures.Count != 0 {
		t.Fatalf("expected login counter zeroed, got %+v", got.LoginFailures)
	}

	if err := s.ClearOTP(ctx, seed.ID, account.PurposeLoginMFA); err != nil {
		t.Fatalf("ClearOTP failed: %v", err)
	}
	for i := 0; i < policy.Threshold; i++ {
		if _, err := s.RecordFailure(ctx, seed.ID, account.CounterLogin, policy, now); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	err := s.IssueLoginOTP(ctx, seed.ID, account.NewOTP("242424", now, 5*time.Minute), now.Add(time.Second))
	var locked *account.CounterLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected CounterLockedError, got %v", err)
	}
	got = mustGet(t, s, seed.ID)
	if !got.LoginOTP.Empty() {
		t.Fatal("expected no MFA code while locked")
	}
	if !got.LoginFailures.Locked(now.Add(time.Second)) {
		t.Fatalf("expected lock to survive the refused issue, got %+v", got.LoginFailures)
	}

	after := now.Add(policy.Duration + time.Second)
	if err := s.IssueLoginOTP(ctx, seed.ID, account.NewOTP("242424", after, 5*time.Minute), after); err != nil {
		t.Fatalf("IssueLoginOTP after lapse failed: %v", err)
	}
	if got := mustGet(t, s, seed.ID).LoginFailures; got.Count != 0 || !got.BlockedUntil.IsZero() {
		t.Fatalf("expected counter cleared after lapse, got %+v", got)
	}
}

func testRecordFailureLocks(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("12")
	mustCreate(t, s, seed)
	now := time.Now().Truncate(time.Second)

	var c account.Counter
	var err error
	for i := 1; i <= 3; i++ {
		c, err = s.RecordFailure(ctx, seed.ID, account.CounterLogin, policy, now)
		if err != nil {
			t.Fatalf("RecordFailure #%d failed: %v", i, err)
		}
		if c.Count != i {
			t.Fatalf("expected count %d, got %d", i, c.Count)
		}
	}
	if !c.Locked(now) {
		t.Fatal("expected lock after third failure")
	}
	if got := c.Remaining(now); got != 15*time.Minute {
		t.Fatalf("expected 15m lock, got %v", got)
	}

	stored := mustGet(t, s, seed.ID).LoginFailures
	if stored.Count != 3 || !stored.Locked(now) {
		t.Fatalf("expected persisted lock, got %+v", stored)
	}

	// A lapsed lock restarts the window.
	later := now.Add(16 * time.Minute)
	c, err = s.RecordFailure(ctx, seed.ID, account.CounterLogin, policy, later)
	if err != nil {
		t.Fatalf("RecordFailure after lapse failed: %v", err)
	}
	if c.Count != 1 || c.Locked(later) {
		t.Fatalf("expected fresh window after lapse, got %+v", c)
	}
}

func testRecordFailureConcurrent(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("13")
	mustCreate(t, s, seed)
	now := time.Now()
	wide := account.LockPolicy{Threshold: 1000, Duration: time.Minute}

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordFailure(ctx, seed.ID, account.CounterLogin, wide, now); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent RecordFailure failed: %v", err)
	}

	if got := mustGet(t, s, seed.ID).LoginFailures.Count; got != workers {
		t.Fatalf("expected %d failures, got %d", workers, got)
	}
}

func testCountersIndependent(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("14")
	mustCreate(t, s, seed)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if _, err := s.RecordFailure(ctx, seed.ID, account.CounterReset, policy, now); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	got := mustGet(t, s, seed.ID)
	if !got.ResetFailures.Locked(now) {
		t.Fatal("expected reset counter locked")
	}
	if got.LoginFailures.Count != 0 || got.OTPFailures.Count != 0 {
		t.Fatalf("expected other counters untouched, got %+v / %+v", got.LoginFailures, got.OTPFailures)
	}
}

func testUpdateProfile(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("17")
	mustCreate(t, s, seed)
	other := Seed("18")
	mustCreate(t, s, other)

	err := s.UpdateProfile(ctx, seed.ID, account.ProfileUpdate{UserName: other.UserName})
	var dup *account.DuplicateError
	if !errors.As(err, &dup) || dup.Field != "userName" {
		t.Fatalf("expected duplicate userName, got %v", err)
	}
	if got := mustGet(t, s, seed.ID); got.UserName != seed.UserName {
		t.Fatalf("expected user name unchanged after conflict, got %q", got.UserName)
	}

	// Re-submitting the current user name is not a conflict.
	if err := s.UpdateProfile(ctx, seed.ID, account.ProfileUpdate{FirstName: "Alicia", UserName: seed.UserName}); err != nil {
		t.Fatalf("UpdateProfile with own user name failed: %v", err)
	}
	if err := s.UpdateProfile(ctx, seed.ID, account.ProfileUpdate{LastName: "Jones", UserName: "alicia_j"}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	got := mustGet(t, s, seed.ID)
	if got.FirstName != "Alicia" || got.LastName != "Jones" || got.UserName != "alicia_j" {
		t.Fatalf("unexpected profile after update: %+v", got)
	}
	if got.Email != seed.Email || got.Phone != seed.Phone {
		t.Fatalf("expected contact fields untouched, got %q / %q", got.Email, got.Phone)
	}
	if byEmail, err := s.ByEmail(ctx, seed.Email); err != nil || byEmail.UserName != "alicia_j" {
		t.Fatalf("expected lookup by email to see the update, got %+v, %v", byEmail, err)
	}

	// The old user name is released and the new one is held.
	released := Seed("19")
	released.UserName = seed.UserName
	mustCreate(t, s, released)
	taken := Seed("20")
	taken.UserName = "alicia_j"
	if err := s.Create(ctx, taken); !errors.As(err, &dup) || dup.Field != "userName" {
		t.Fatalf("expected new user name held, got %v", err)
	}

	if err := s.UpdateProfile(ctx, "ghost", account.ProfileUpdate{FirstName: "Bob"}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDelete(t *testing.T, s account.Store) {
	ctx := context.Background()
	seed := Seed("21")
	mustCreate(t, s, seed)
	keep := Seed("22")
	mustCreate(t, s, keep)

	if err := s.Delete(ctx, seed.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.ByID(ctx, seed.ID); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by id, got %v", err)
	}
	if _, err := s.ByEmail(ctx, seed.Email); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by email, got %v", err)
	}
	if _, err := s.ByPhone(ctx, seed.Phone); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by phone, got %v", err)
	}
	if err := s.Delete(ctx, seed.ID); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	// Every identity field is free again.
	again := Seed("21")
	again.ID = "acct-21b"
	mustCreate(t, s, again)

	if got := mustGet(t, s, keep.ID); got.Email != keep.Email {
		t.Fatalf("expected other account untouched, got %+v", got)
	}
}
