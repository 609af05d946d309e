package account

import "time"

// Role is the authorization role carried in issued tokens.
type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdmin
}

// VerificationState tracks whether the registration OTP has been confirmed.
type VerificationState uint8

const (
	Unverified VerificationState = iota
	Verified
)

func (s VerificationState) String() string {
	if s == Verified {
		return "verified"
	}
	return "unverified"
}

// OTPPurpose selects one of the three independent OTP slots on an account.
type OTPPurpose uint8

const (
	PurposeRegistration OTPPurpose = iota + 1
	PurposeLoginMFA
	PurposePasswordReset
)

func (p OTPPurpose) String() string {
	switch p {
	case PurposeRegistration:
		return "registration"
	case PurposeLoginMFA:
		return "login_mfa"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// Valid reports whether p names a slot.
func (p OTPPurpose) Valid() bool {
	return p >= PurposeRegistration && p <= PurposePasswordReset
}

// CounterKind selects one of the three independent failure counters.
type CounterKind uint8

const (
	CounterLogin CounterKind = iota + 1
	CounterMFA
	CounterReset
)

func (k CounterKind) String() string {
	switch k {
	case CounterLogin:
		return "login"
	case CounterMFA:
		return "mfa"
	case CounterReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Valid reports whether k names a counter.
func (k CounterKind) Valid() bool {
	return k >= CounterLogin && k <= CounterReset
}

// Account is the persisted credential record.
//
// PasswordHash stays empty until the registration OTP is confirmed. All OTP
// slots and counters are evaluated lazily against the caller's clock; nothing
// sweeps them in the background.
type Account struct {
	ID        string
	FirstName string
	LastName  string
	UserName  string
	Email     string
	Phone     string

	PasswordHash string
	State        VerificationState
	Role         Role

	RegistrationOTP OTP
	LoginOTP        OTP
	ResetOTP        OTP

	// ResetResendBlockedUntil gates new password-reset codes, independent of
	// whether the last code has expired.
	ResetResendBlockedUntil time.Time

	LoginFailures Counter
	OTPFailures   Counter
	ResetFailures Counter

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OTPFor returns the slot for purpose.
func (a *Account) OTPFor(purpose OTPPurpose) OTP {
	switch purpose {
	case PurposeRegistration:
		return a.RegistrationOTP
	case PurposeLoginMFA:
		return a.LoginOTP
	case PurposePasswordReset:
		return a.ResetOTP
	default:
		return OTP{}
	}
}

// SetOTPFor replaces the slot for purpose.
func (a *Account) SetOTPFor(purpose OTPPurpose, otp OTP) {
	switch purpose {
	case PurposeRegistration:
		a.RegistrationOTP = otp
	case PurposeLoginMFA:
		a.LoginOTP = otp
	case PurposePasswordReset:
		a.ResetOTP = otp
	}
}

// Counter returns the failure counter for kind.
func (a *Account) Counter(kind CounterKind) Counter {
	switch kind {
	case CounterLogin:
		return a.LoginFailures
	case CounterMFA:
		return a.OTPFailures
	case CounterReset:
		return a.ResetFailures
	default:
		return Counter{}
	}
}

// SetCounter replaces the failure counter for kind.
func (a *Account) SetCounter(kind CounterKind, c Counter) {
	switch kind {
	case CounterLogin:
		a.LoginFailures = c
	case CounterMFA:
		a.OTPFailures = c
	case CounterReset:
		a.ResetFailures = c
	}
}

// Verified reports whether registration has been confirmed.
func (a *Account) Verified() bool {
	return a != nil && a.State == Verified
}

// Profile returns the public projection of a.
func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		UserName:  a.UserName,
		Email:     a.Email,
		Phone:     a.Phone,
		Role:      a.Role,
		Verified:  a.State == Verified,
		CreatedAt: a.CreatedAt,
	}
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// ProfileUpdate lists the display fields an account holder may change. Empty
// fields keep their stored value. Email and phone are the verified OTP
// channels and are not editable here.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	UserName  string
}

// Empty reports whether u changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == "" && u.LastName == "" && u.UserName == ""
}

// Profile is the account view returned to clients. It never carries the
// password hash, OTP slots, or counters.
type Profile struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	UserName  string    `json:"userName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phoneNumber,omitempty"`
	Role      Role      `json:"role"`
	Verified  bool      `json:"isVerified"`
	CreatedAt time.Time `json:"createdAt"`
}
