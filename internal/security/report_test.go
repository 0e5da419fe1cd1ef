package security

import (
	"testing"
	"time"
)

func TestBuildReportFlagsWeakSettings(t *testing.T) {
	r := BuildReport(ReportInput{
		SigningAlgorithm: "hs256",
		RememberMeTTL:    365 * 24 * time.Hour,
		KDF:              KDFReport{Algorithm: "pbkdf2-sha512", Iterations: 1000},
	})
	if !r.WeakKDF {
		t.Fatal("expected weak KDF")
	}
	if r.LoginThrottleActive || r.IPThrottleActive {
		t.Fatal("throttle must be inactive without attempts")
	}
	if len(r.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %v", r.Warnings)
	}
}

func TestBuildReportCleanConfig(t *testing.T) {
	r := BuildReport(ReportInput{
		SigningAlgorithm:      "hs256",
		RememberMeTTL:         30 * 24 * time.Hour,
		KDF:                   KDFReport{Algorithm: "argon2id", Memory: 65536, Time: 3},
		DecoySecretConfigured: true,
		MaxLoginAttempts:      10,
		LoginCooldownDuration: 15 * time.Minute,
		EnableIPThrottle:      true,
	})
	if r.WeakKDF || !r.LoginThrottleActive || !r.IPThrottleActive || !r.DecoySaltsStable {
		t.Fatalf("unexpected report: %+v", r)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}
