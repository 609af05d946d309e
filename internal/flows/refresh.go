package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/jwt"
)

type RefreshErrors struct {
	EngineNotReady  error
	Unauthorized    error
	Forbidden       error
	AccountNotFound error
}

// RefreshDeps captures token refresh dependencies. Validate must already be
// wired to the engine's token verification.
type RefreshDeps struct {
	Hooks

	Store      account.Store
	Validate   func(ctx context.Context, token string) (*jwt.Claims, error)
	IssueToken func(uid string, role account.Role) (string, time.Time, error)

	MetricRefreshed int
	Event           string
	Errors          RefreshErrors
}

// RunRefreshToken issues a fresh token for the holder of a valid one. The
// role is read again from the store so demotions take effect on refresh.
func RunRefreshToken(ctx context.Context, bearer, userID string, d RefreshDeps) (string, time.Time, error) {
	d.Hooks.normalize()
	if d.Store == nil || d.Validate == nil || d.IssueToken == nil {
		return "", time.Time{}, d.Errors.EngineNotReady
	}

	claims, err := d.Validate(ctx, bearer)
	if err != nil {
		return "", time.Time{}, d.fail(ctx, noMetric, d.Event, "", err, nil)
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = claims.UID
	}
	if userID != claims.UID {
		return "", time.Time{}, d.fail(ctx, noMetric, d.Event, claims.UID, d.Errors.Forbidden, func() map[string]string {
			return map[string]string{"requested_user": userID}
		})
	}

	acct, err := d.Store.ByID(ctx, userID)
	if err != nil {
		mapped := d.MapStoreError(err)
		if errors.Is(mapped, d.Errors.AccountNotFound) {
			mapped = d.Errors.Unauthorized
		}
		return "", time.Time{}, d.fail(ctx, noMetric, d.Event, userID, mapped, nil)
	}
	if !acct.Verified() {
		return "", time.Time{}, d.fail(ctx, noMetric, d.Event, userID, d.Errors.Unauthorized, reason("unverified"))
	}

	token, exp, err := d.IssueToken(acct.ID, acct.Role)
	if err != nil {
		return "", time.Time{}, d.fail(ctx, noMetric, d.Event, userID, err, reason("token_issue_failed"))
	}

	d.MetricInc(d.MetricRefreshed)
	d.EmitAudit(ctx, d.Event, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"role": string(acct.Role)}
	})
	return token, exp, nil
}
