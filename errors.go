package challengeAuth

import "errors"

var (
	// ErrWrongChallenge is returned when a login session or MFA challenge key
	// is missing, expired or already used.
	ErrWrongChallenge = errors.New("wrong challenge")
	// ErrInvalidCredentials covers every other handshake failure: ciphertext
	// mismatch, unknown identity, bad TOTP token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned after too many failed handshakes.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrCodeAttemptsExceeded is returned after too many wrong verification
	// or TOTP codes for one subject.
	ErrCodeAttemptsExceeded = errors.New("too many wrong codes")

	ErrIdentityExists          = errors.New("name or email already taken")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrVerificationRateLimited = errors.New("too many outstanding verification codes")
	ErrWrongVerificationCode   = errors.New("wrong verification code")

	ErrMFAAlreadyActivated   = errors.New("mfa already activated")
	ErrMFANotActivated       = errors.New("mfa activation not confirmed")
	ErrMFAAlreadyDeactivated = errors.New("mfa already deactivated")
	ErrOTPAuth               = errors.New("otpauth uri generation failed")
	ErrMFAQRCode             = errors.New("mfa qr code generation failed")

	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBackendUnavailable wraps Redis and job-queue failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrEngineNotReady     = errors.New("engine not initialized")
)
