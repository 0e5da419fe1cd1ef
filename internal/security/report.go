package security

import "time"

// KDFReport describes the password key derivation parameters.
type KDFReport struct {
	Algorithm   string
	Iterations  uint32
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	SigningAlgorithm        string
	TokenTTL                time.Duration
	RememberMeTTL           time.Duration
	LoginSessionTTL         time.Duration
	KDF                     KDFReport
	WeakKDF                 bool
	TOTPSkewWindows         int
	DecoySaltsStable        bool
	LoginThrottleActive     bool
	IPThrottleActive        bool
	VerificationSlots       int
	SiblingCodesInvalidated bool
	PermissionCacheTTL      time.Duration
	AuditActive             bool
	Warnings                []string
}

type ReportInput struct {
	SigningAlgorithm       string
	TokenTTL               time.Duration
	RememberMeTTL          time.Duration
	LoginSessionTTL        time.Duration
	KDF                    KDFReport
	TOTPSkew               int
	DecoySecretConfigured  bool
	MaxLoginAttempts       int
	LoginCooldownDuration  time.Duration
	EnableIPThrottle       bool
	VerificationSlots      int
	InvalidateSiblingCodes bool
	PermissionCacheTTL     time.Duration
	AuditSinkConfigured    bool
}

// Minimum PBKDF2 iteration count before the report flags the KDF as weak.
const minPBKDF2Iterations = 10000

func BuildReport(input ReportInput) Report {
	throttle := input.MaxLoginAttempts > 0 && input.LoginCooldownDuration > 0

	weak := false
	switch input.KDF.Algorithm {
	case "pbkdf2-sha512", "pbkdf2":
		weak = input.KDF.Iterations < minPBKDF2Iterations
	case "argon2id":
		weak = input.KDF.Memory < 19*1024 || input.KDF.Time < 2
	}

	r := Report{
		SigningAlgorithm:        input.SigningAlgorithm,
		TokenTTL:                input.TokenTTL,
		RememberMeTTL:           input.RememberMeTTL,
		LoginSessionTTL:         input.LoginSessionTTL,
		KDF:                     input.KDF,
		WeakKDF:                 weak,
		TOTPSkewWindows:         input.TOTPSkew,
		DecoySaltsStable:        input.DecoySecretConfigured,
		LoginThrottleActive:     throttle,
		IPThrottleActive:        throttle && input.EnableIPThrottle,
		VerificationSlots:       input.VerificationSlots,
		SiblingCodesInvalidated: input.InvalidateSiblingCodes,
		PermissionCacheTTL:      input.PermissionCacheTTL,
		AuditActive:             input.AuditSinkConfigured,
	}

	if weak {
		r.Warnings = append(r.Warnings, "password key derivation below recommended cost")
	}
	if !throttle {
		r.Warnings = append(r.Warnings, "failed-login throttle disabled")
	}
	if !input.DecoySecretConfigured {
		r.Warnings = append(r.Warnings, "decoy secret not configured; unknown-user salts change on restart")
	}
	if input.RememberMeTTL > 90*24*time.Hour {
		r.Warnings = append(r.Warnings, "remember-me tokens live longer than 90 days")
	}
	return r
}
