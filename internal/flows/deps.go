package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/falcomAuth/account"
)

// Hooks are the engine callbacks shared by every flow.
type Hooks struct {
	Now       func() time.Time
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string)

	// MapStoreError translates account store errors into engine errors.
	MapStoreError func(error) error
	// Invalid builds the engine's validation error for a request field.
	Invalid func(field, reason string) error
	// Locked wraps a lock sentinel with the time left on the lock.
	Locked func(err error, retryAfter time.Duration) error
}

func (h *Hooks) normalize() {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.MapStoreError == nil {
		h.MapStoreError = func(err error) error { return err }
	}
	if h.Invalid == nil {
		h.Invalid = func(field, reason string) error { return errors.New(field + ": " + reason) }
	}
	if h.Locked == nil {
		h.Locked = func(err error, _ time.Duration) error { return err }
	}
}

// fail records a failed step in one call.
func (h *Hooks) fail(ctx context.Context, metric int, event, userID string, err error, meta func() map[string]string) error {
	if metric >= 0 {
		h.MetricInc(metric)
	}
	h.EmitAudit(ctx, event, false, userID, err, meta)
	return err
}

// counterLocked reports whether err is a store refusal caused by an active
// failure lock, and how long the lock has left at now.
func counterLocked(err error, now time.Time) (time.Duration, bool) {
	var locked *account.CounterLockedError
	if !errors.As(err, &locked) {
		return 0, false
	}
	return max(locked.Until.Sub(now), 0), true
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}

const noMetric = -1
