package falcomAuth

import (
	"context"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal/flows"
)

func (e *Engine) profileDeps() flows.ProfileDeps {
	return flows.ProfileDeps{
		Hooks: e.hooks(),
		Store: e.store,
		Events: flows.ProfileEvents{
			Update: auditEventProfileUpdated,
			Delete: auditEventAccountDeleted,
		},
		Errors: flows.ProfileErrors{
			EngineNotReady:  ErrEngineNotReady,
			AccountNotFound: ErrAccountNotFound,
			Unauthorized:    ErrUnauthorized,
			Forbidden:       ErrForbidden,
		},
	}
}

// UpdateProfile changes the names or user name of the verified account
// userID. Email and phone are the OTP delivery channels and cannot be edited
// here. A user name already held by another account is ErrAccountExists.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, req ProfileUpdateRequest) (*account.Profile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	acct, err := flows.RunUpdateProfile(ctx, userID, account.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserName:  req.UserName,
	}, e.profileDeps())
	if err != nil {
		return nil, err
	}
	p := acct.Profile()
	return &p, nil
}

// DeleteAccount removes userID and its stored activity on behalf of the
// admin actorID. Role checks happen at the transport edge; an admin removing
// their own account gets ErrForbidden.
func (e *Engine) DeleteAccount(ctx context.Context, actorID, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunDeleteAccount(ctx, actorID, userID, e.profileDeps())
}
