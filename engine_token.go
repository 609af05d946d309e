package falcomAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
	"github.com/MrEthical07/falcomAuth/internal/flows"
)

// ValidateToken verifies a session token's signature, algorithm, expiry and
// issuer/audience. It does not consult the store.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	return flows.RunValidateToken(ctx, token, flows.ValidateDeps{
		ParseToken:     e.jwtManager.ParseToken,
		Now:            time.Now,
		MetricInc:      func(id int) { e.metricInc(MetricID(id)) },
		Observe:        func(d time.Duration) { e.metrics.Observe(MetricValidateLatency, d) },
		MetricRejected: int(MetricTokenRejected),
		Unauthorized:   ErrUnauthorized,
		TokenInvalid:   ErrTokenInvalid,
	})
}

// RefreshToken issues a new token to the holder of a valid bearer token.
// userID defaults to the token's uid and must match it.
func (e *Engine) RefreshToken(ctx context.Context, bearerToken, userID string) (*TokenResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	token, exp, err := flows.RunRefreshToken(ctx, bearerToken, userID, flows.RefreshDeps{
		Hooks:           e.hooks(),
		Store:           e.store,
		Validate:        e.ValidateToken,
		IssueToken:      e.issueToken,
		MetricRefreshed: int(MetricTokenRefreshed),
		Event:           auditEventTokenRefresh,
		Errors: flows.RefreshErrors{
			EngineNotReady:  ErrEngineNotReady,
			Unauthorized:    ErrUnauthorized,
			Forbidden:       ErrForbidden,
			AccountNotFound: ErrAccountNotFound,
		},
	})
	if err != nil {
		return nil, err
	}
	return &TokenResult{Token: token, ExpiresAt: exp}, nil
}

// CurrentAccount returns the profile of the verified account userID.
func (e *Engine) CurrentAccount(ctx context.Context, userID string) (*account.Profile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	acct, err := flows.RunCurrentAccount(ctx, userID, flows.CurrentAccountDeps{
		Store:           e.store,
		MapStoreError:   e.mapStoreError,
		AccountNotFound: ErrAccountNotFound,
		Unauthorized:    ErrUnauthorized,
	})
	if err != nil {
		return nil, err
	}
	p := acct.Profile()
	return &p, nil
}
