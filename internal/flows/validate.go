package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/falcomAuth/jwt"
)

// ValidateDeps captures token verification dependencies.
type ValidateDeps struct {
	ParseToken func(string) (*jwt.Claims, error)
	Now        func() time.Time
	MetricInc  func(int)
	Observe    func(time.Duration)

	MetricRejected int
	Unauthorized   error
	TokenInvalid   error
}

// RunValidateToken verifies a bearer token and returns its claims. An empty
// token is unauthorized; every other failure wraps TokenInvalid.
func RunValidateToken(_ context.Context, token string, d ValidateDeps) (*jwt.Claims, error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ParseToken == nil {
		return nil, d.TokenInvalid
	}

	start := d.Now()
	defer func() {
		if d.Observe != nil {
			d.Observe(d.Now().Sub(start))
		}
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, d.Unauthorized
	}

	claims, err := d.ParseToken(token)
	if err != nil {
		if d.MetricInc != nil {
			d.MetricInc(d.MetricRejected)
		}
		return nil, errors.Join(d.TokenInvalid, err)
	}
	return claims, nil
}
