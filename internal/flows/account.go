package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/falcomAuth/account"
)

// CurrentAccountDeps captures profile lookup dependencies.
type CurrentAccountDeps struct {
	Store         account.Store
	MapStoreError func(error) error

	AccountNotFound error
	Unauthorized    error
}

// RunCurrentAccount loads the verified account behind an authenticated
// request. A token for a vanished or unverified account is unauthorized.
func RunCurrentAccount(ctx context.Context, userID string, d CurrentAccountDeps) (*account.Account, error) {
	if d.MapStoreError == nil {
		d.MapStoreError = func(err error) error { return err }
	}
	if userID == "" {
		return nil, d.Unauthorized
	}

	acct, err := d.Store.ByID(ctx, userID)
	if err != nil {
		mapped := d.MapStoreError(err)
		if errors.Is(mapped, d.AccountNotFound) {
			return nil, d.Unauthorized
		}
		return nil, mapped
	}
	if !acct.Verified() {
		return nil, d.Unauthorized
	}
	return acct, nil
}

type ProfileErrors struct {
	EngineNotReady  error
	AccountNotFound error
	Unauthorized    error
	Forbidden       error
}

type ProfileEvents struct {
	Update string
	Delete string
}

// ProfileDeps captures profile edit and admin removal dependencies.
type ProfileDeps struct {
	Hooks

	Store  account.Store
	Events ProfileEvents
	Errors ProfileErrors
}

// RunUpdateProfile applies the non-empty display fields of u to the verified
// account behind an authenticated request and returns the updated account.
func RunUpdateProfile(ctx context.Context, userID string, u account.ProfileUpdate, d ProfileDeps) (*account.Account, error) {
	d.Hooks.normalize()
	if d.Store == nil {
		return nil, d.Errors.EngineNotReady
	}

	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	u.UserName = strings.TrimSpace(u.UserName)
	switch {
	case u.Empty():
		return nil, d.fail(ctx, noMetric, d.Events.Update, userID, d.Invalid("profile", "needs at least one of firstName, lastName or userName"), nil)
	case u.FirstName != "" && !checkName(u.FirstName):
		return nil, d.fail(ctx, noMetric, d.Events.Update, userID, d.Invalid("firstName", "must be 2 to 50 characters"), nil)
	case u.LastName != "" && !checkName(u.LastName):
		return nil, d.fail(ctx, noMetric, d.Events.Update, userID, d.Invalid("lastName", "must be 2 to 50 characters"), nil)
	case u.UserName != "" && !checkUserName(u.UserName):
		return nil, d.fail(ctx, noMetric, d.Events.Update, userID, d.Invalid("userName", "must be 3 to 30 letters, digits, '_', '.' or '-'"), nil)
	}

	acct, err := RunCurrentAccount(ctx, userID, CurrentAccountDeps{
		Store:           d.Store,
		MapStoreError:   d.MapStoreError,
		AccountNotFound: d.Errors.AccountNotFound,
		Unauthorized:    d.Errors.Unauthorized,
	})
	if err != nil {
		return nil, d.fail(ctx, noMetric, d.Events.Update, userID, err, nil)
	}

	if err := d.Store.UpdateProfile(ctx, acct.ID, u); err != nil {
		mapped := d.MapStoreError(err)
		if errors.Is(err, account.ErrNotFound) {
			mapped = d.Errors.Unauthorized
		}
		return nil, d.fail(ctx, noMetric, d.Events.Update, acct.ID, mapped, nil)
	}

	changed := make([]string, 0, 3)
	if u.FirstName != "" {
		acct.FirstName = u.FirstName
		changed = append(changed, "firstName")
	}
	if u.LastName != "" {
		acct.LastName = u.LastName
		changed = append(changed, "lastName")
	}
	if u.UserName != "" {
		acct.UserName = u.UserName
		changed = append(changed, "userName")
	}
	d.EmitAudit(ctx, d.Events.Update, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"fields": strings.Join(changed, ",")}
	})
	return acct, nil
}

// RunDeleteAccount removes targetID on behalf of actorID. The caller has
// already checked that actorID holds the admin role. Admins cannot remove
// their own account.
func RunDeleteAccount(ctx context.Context, actorID, targetID string, d ProfileDeps) error {
	d.Hooks.normalize()
	if d.Store == nil {
		return d.Errors.EngineNotReady
	}

	targetID = strings.TrimSpace(targetID)
	target := func() map[string]string { return map[string]string{"target": targetID} }
	switch {
	case targetID == "":
		return d.fail(ctx, noMetric, d.Events.Delete, actorID, d.Invalid("userId", "is required"), nil)
	case actorID == "":
		return d.fail(ctx, noMetric, d.Events.Delete, "", d.Errors.Unauthorized, target)
	case actorID == targetID:
		return d.fail(ctx, noMetric, d.Events.Delete, actorID, d.Errors.Forbidden, target)
	}

	if err := d.Store.Delete(ctx, targetID); err != nil {
		return d.fail(ctx, noMetric, d.Events.Delete, actorID, d.MapStoreError(err), target)
	}
	d.EmitAudit(ctx, d.Events.Delete, true, actorID, nil, target)
	return nil
}
