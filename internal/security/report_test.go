package security

import (
	"testing"
	"time"
)

func TestBuildReportDerivedFlags(t *testing.T) {
	r := BuildReport(ReportInput{
		SigningAlgorithm:  "hs256",
		CaptchaRequired:   true,
		CaptchaFailOpen:   true,
		LoginMaxAttempts:  3,
		LoginLockDuration: 15 * time.Minute,
		MFAMaxAttempts:    3,
		AuditEnabled:      false,
		AuditDropIfFull:   true,
	})

	if r.CaptchaEnforced || !r.CaptchaFailOpen {
		t.Fatalf("fail-open captcha must not count as enforced: %+v", r)
	}
	if !r.AccountEnumeration {
		t.Fatal("expected enumeration to be reported when unknown accounts are not hidden")
	}
	if !r.LoginLockout.Active {
		t.Fatal("expected login lockout active")
	}
	if r.MFALockout.Active {
		t.Fatal("lockout without a duration must be inactive")
	}
	if r.AuditDropsWhenFull {
		t.Fatal("drop policy is irrelevant while audit is disabled")
	}
}

func TestBuildReportCaptchaOff(t *testing.T) {
	r := BuildReport(ReportInput{CaptchaFailOpen: true, HideUnknownAccounts: true})
	if r.CaptchaEnforced || r.CaptchaFailOpen {
		t.Fatalf("captcha flags must be off when not required: %+v", r)
	}
	if r.AccountEnumeration {
		t.Fatal("hidden unknown accounts must not report enumeration")
	}
}
