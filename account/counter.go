package account

import "time"

// LockPolicy converts consecutive failures into a timed block.
type LockPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Valid reports whether p can produce a lock.
func (p LockPolicy) Valid() bool {
	return p.Threshold > 0 && p.Duration > 0
}

// Counter is a per-account failure counter.
type Counter struct {
	Count        int
	BlockedUntil time.Time
}

// Locked reports whether the counter blocks the flow at now.
func (c Counter) Locked(now time.Time) bool {
	return !c.BlockedUntil.IsZero() && now.Before(c.BlockedUntil)
}

// Remaining returns the time left on an active block, or zero.
func (c Counter) Remaining(now time.Time) time.Duration {
	if !c.Locked(now) {
		return 0
	}
	return c.BlockedUntil.Sub(now)
}

// Fail records one failure at now and returns the updated counter.
//
// A lapsed block starts a fresh window. While a block is active the counter is
// returned unchanged, so a request that raced past the lock check cannot push
// the expiry further out.
func (c Counter) Fail(p LockPolicy, now time.Time) Counter {
	if c.Locked(now) {
		return c
	}
	if !c.BlockedUntil.IsZero() {
		c = Counter{}
	}
	c.Count++
	if p.Threshold > 0 && c.Count >= p.Threshold {
		c.BlockedUntil = now.Add(p.Duration)
	}
	return c
}
