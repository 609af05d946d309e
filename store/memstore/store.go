// Package memstore is an in-process account.Store for tests and single-node
// development. It is not durable and is not shared across processes.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
)

// Store keeps accounts in memory behind a single mutex.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*account.Account
	byEmail map[string]string
	byUser  map[string]string
	byPhone map[string]string
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*account.Account),
		byEmail: make(map[string]string),
		byUser:  make(map[string]string),
		byPhone: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	if acct == nil || acct.ID == "" {
		return account.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[acct.Email]; ok {
		return &account.DuplicateError{Field: "email"}
	}
	if _, ok := s.byUser[acct.UserName]; ok {
		return &account.DuplicateError{Field: "userName"}
	}
	if acct.Phone != "" {
		if _, ok := s.byPhone[acct.Phone]; ok {
			return &account.DuplicateError{Field: "phoneNumber"}
		}
	}
	if _, ok := s.byID[acct.ID]; ok {
		return &account.DuplicateError{Field: "id"}
	}

	cp := acct.Clone()
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.byID[cp.ID] = cp
	s.byEmail[cp.Email] = cp.ID
	s.byUser[cp.UserName] = cp.ID
	if cp.Phone != "" {
		s.byPhone[cp.Phone] = cp.ID
	}
	return nil
}

func (s *Store) ByID(ctx context.Context, id string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return acct.Clone(), nil
}

func (s *Store) ByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.byIndex(s.byEmail, email)
}

func (s *Store) ByPhone(ctx context.Context, phone string) (*account.Account, error) {
	return s.byIndex(s.byPhone, phone)
}

func (s *Store) byIndex(index map[string]string, key string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := index[key]
	if !ok {
		return nil, account.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) SetOTP(ctx context.Context, id string, purpose account.OTPPurpose, otp account.OTP) error {
	return s.mutate(id, func(a *account.Account) error {
		a.SetOTPFor(purpose, otp)
		return nil
	})
}

func (s *Store) ClearOTP(ctx context.Context, id string, purpose account.OTPPurpose) error {
	return s.mutate(id, func(a *account.Account) error {
		a.SetOTPFor(purpose, account.OTP{})
		if purpose == account.PurposePasswordReset {
			a.ResetResendBlockedUntil = time.Time{}
		}
		return nil
	})
}

func (s *Store) IssueResetOTP(ctx context.Context, id string, otp account.OTP, blockUntil, now time.Time) error {
	return s.mutate(id, func(a *account.Account) error {
		if now.Before(a.ResetResendBlockedUntil) {
			return &account.ResendBlockedError{Until: a.ResetResendBlockedUntil}
		}
		a.ResetOTP = otp
		a.ResetResendBlockedUntil = blockUntil
		return nil
	})
}

func (s *Store) IssueLoginOTP(ctx context.Context, id string, otp account.OTP, now time.Time) error {
	return s.mutate(id, func(a *account.Account) error {
		if a.LoginFailures.Locked(now) {
			return &account.CounterLockedError{Until: a.LoginFailures.BlockedUntil}
		}
		a.LoginOTP = otp
		a.LoginFailures = account.Counter{}
		return nil
	})
}

func (s *Store) ConfirmRegistration(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error {
	return s.mutate(id, func(a *account.Account) error {
		if a.State == account.Verified {
			return account.ErrAlreadyVerified
		}
		if !a.RegistrationOTP.Matches(otpHash, now) {
			return account.ErrOTPStale
		}
		a.PasswordHash = passwordHash
		a.State = account.Verified
		a.RegistrationOTP = account.OTP{}
		return nil
	})
}

func (s *Store) CompleteLoginMFA(ctx context.Context, id string, otpHash [32]byte, now time.Time) error {
	return s.mutate(id, func(a *account.Account) error {
		if !a.LoginOTP.Matches(otpHash, now) {
			return account.ErrOTPStale
		}
		a.LoginOTP = account.OTP{}
		a.OTPFailures = account.Counter{}
		return nil
	})
}

func (s *Store) CompletePasswordReset(ctx context.Context, id string, otpHash [32]byte, passwordHash string, now time.Time) error {
	return s.mutate(id, func(a *account.Account) error {
		if a.ResetFailures.Locked(now) {
			return &account.CounterLockedError{Until: a.ResetFailures.BlockedUntil}
		}
		if !a.ResetOTP.Matches(otpHash, now) {
			return account.ErrOTPStale
		}
		a.PasswordHash = passwordHash
		a.ResetOTP = account.OTP{}
		a.ResetResendBlockedUntil = time.Time{}
		a.ResetFailures = account.Counter{}
		return nil
	})
}

func (s *Store) RecordFailure(ctx context.Context, id string, kind account.CounterKind, policy account.LockPolicy, now time.Time) (account.Counter, error) {
	var out account.Counter
	err := s.mutate(id, func(a *account.Account) error {
		out = a.Counter(kind).Fail(policy, now)
		a.SetCounter(kind, out)
		return nil
	})
	return out, err
}

func (s *Store) UpdateProfile(ctx context.Context, id string, u account.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	if u.UserName != "" && u.UserName != acct.UserName {
		if _, taken := s.byUser[u.UserName]; taken {
			return &account.DuplicateError{Field: "userName"}
		}
	}

	next := acct.Clone()
	if u.FirstName != "" {
		next.FirstName = u.FirstName
	}
	if u.LastName != "" {
		next.LastName = u.LastName
	}
	if u.UserName != "" && u.UserName != acct.UserName {
		delete(s.byUser, acct.UserName)
		s.byUser[u.UserName] = id
		next.UserName = u.UserName
	}
	next.UpdatedAt = s.now()
	s.byID[id] = next
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	delete(s.byEmail, acct.Email)
	delete(s.byUser, acct.UserName)
	if acct.Phone != "" {
		delete(s.byPhone, acct.Phone)
	}
	delete(s.byID, id)
	return nil
}

func (s *Store) SetPasswordHash(ctx context.Context, id string, passwordHash string) error {
	return s.mutate(id, func(a *account.Account) error {
		a.PasswordHash = passwordHash
		return nil
	})
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// mutate applies fn to the live record. fn's changes are discarded when it
// returns an error.
func (s *Store) mutate(id string, fn func(*account.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	next := acct.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = s.now()
	s.byID[id] = next
	return nil
}
