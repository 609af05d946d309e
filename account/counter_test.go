package account

import (
	"testing"
	"time"
)

var testPolicy = LockPolicy{Threshold: 3, Duration: 15 * time.Minute}

func TestCounterLocksAtThreshold(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var c Counter

	c = c.Fail(testPolicy, now)
	c = c.Fail(testPolicy, now)
	if c.Locked(now) {
		t.Fatal("expected counter unlocked after two failures")
	}

	c = c.Fail(testPolicy, now)
	if !c.Locked(now) {
		t.Fatal("expected counter locked after third failure")
	}
	if want := now.Add(15 * time.Minute); !c.BlockedUntil.Equal(want) {
		t.Fatalf("expected BlockedUntil %v, got %v", want, c.BlockedUntil)
	}
	if got := c.Remaining(now.Add(5 * time.Minute)); got != 10*time.Minute {
		t.Fatalf("expected 10m remaining, got %v", got)
	}
}

func TestCounterFailWhileLockedDoesNotExtend(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := Counter{Count: 3, BlockedUntil: now.Add(time.Minute)}

	next := c.Fail(testPolicy, now)
	if next != c {
		t.Fatalf("expected unchanged counter while locked, got %+v", next)
	}
}

func TestCounterLapsedBlockStartsFreshWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := Counter{Count: 3, BlockedUntil: now.Add(-time.Second)}

	next := c.Fail(testPolicy, now)
	if next.Count != 1 {
		t.Fatalf("expected fresh window count 1, got %d", next.Count)
	}
	if !next.BlockedUntil.IsZero() {
		t.Fatal("expected no block after first failure of new window")
	}
}

func TestCounterZeroPolicyNeverLocks(t *testing.T) {
	now := time.Now()
	var c Counter
	for i := 0; i < 10; i++ {
		c = c.Fail(LockPolicy{}, now)
	}
	if c.Locked(now) || c.Count != 10 {
		t.Fatalf("unexpected counter %+v", c)
	}
}

func TestAccountCounterSlotsAreIndependent(t *testing.T) {
	now := time.Now()
	a := &Account{}
	for i := 0; i < 3; i++ {
		a.SetCounter(CounterMFA, a.Counter(CounterMFA).Fail(testPolicy, now))
	}
	if !a.Counter(CounterMFA).Locked(now) {
		t.Fatal("expected MFA counter locked")
	}
	if a.Counter(CounterLogin).Locked(now) || a.Counter(CounterReset).Locked(now) {
		t.Fatal("expected login and reset counters untouched")
	}
}
