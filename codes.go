package challengeAuth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/challengeAuth/identity"
)

// Code is the stable machine-readable outcome sent to clients.
type Code string

const (
	CodeAuthenticated         Code = "AUTHENTICATED"
	CodeEmailNotVerified      Code = "EMAIL_NOT_VERIFIED"
	CodePasswordExpired       Code = "PASSWORD_EXPIRED"
	CodeMFARequired           Code = "MFA_REQUIRED"
	CodeUserCreated           Code = "USER_CREATED"
	CodeVerificationEmailSent Code = "VERIFICATION_EMAIL_SENT"
	CodeEmailConfirmed        Code = "EMAIL_CONFIRMED"
	CodeMFAActivated          Code = "MFA_ACTIVATED"
	CodeMFADeactivated        Code = "MFA_DEACTIVATED"
	CodeOK                    Code = "OK"

	CodeWrongChallenge        Code = "WRONG_CHALLENGE"
	CodeWrongChallengeE       Code = "WRONG_CHALLENGE-E"
	CodeTooManyAttempts       Code = "TOO_MANY_ATTEMPTS"
	CodeUsernameAlreadyTaken  Code = "USERNAME_ALREADY_TAKEN"
	CodeWaitTooManyAttempts   Code = "WAIT_TOO_MANY_ATTEMPTS"
	CodeWrongVerificationCode Code = "WRONG_VERIFICATION_CODE"
	CodeMFAAlreadyActivated   Code = "MFA_ALREADY_ACTIVATED"
	CodeMFANotActivated       Code = "MFA_NOT_ACTIVATED"
	CodeMFAAlreadyDeactivated Code = "MFA_ALREADY_DEACTIVATED"
	CodeOTPAuthError          Code = "OTPAUTH_ERROR"
	CodeMFAQRCodeError        Code = "MFA_QRCODE_ERROR"
	CodeValidationError       Code = "VALIDATION_ERROR"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeForbidden             Code = "FORBIDDEN"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeServiceUnavailable    Code = "SERVICE_UNAVAILABLE"
	CodeInternalServerError   Code = "INTERNAL_SERVER_ERROR"
)

var errorCodes = []struct {
	err    error
	code   Code
	status int
}{
	{ErrWrongChallenge, CodeWrongChallenge, http.StatusBadRequest},
	{ErrInvalidCredentials, CodeWrongChallengeE, http.StatusBadRequest},
	{ErrLoginRateLimited, CodeTooManyAttempts, http.StatusTooManyRequests},
	{ErrCodeAttemptsExceeded, CodeTooManyAttempts, http.StatusTooManyRequests},
	{ErrIdentityExists, CodeUsernameAlreadyTaken, http.StatusBadRequest},
	{ErrInvalidRequest, CodeValidationError, http.StatusUnprocessableEntity},
	{ErrVerificationRateLimited, CodeWaitTooManyAttempts, http.StatusBadRequest},
	{ErrWrongVerificationCode, CodeWrongVerificationCode, http.StatusBadRequest},
	{ErrMFAAlreadyActivated, CodeMFAAlreadyActivated, http.StatusBadRequest},
	{ErrMFANotActivated, CodeMFANotActivated, http.StatusBadRequest},
	{ErrMFAAlreadyDeactivated, CodeMFAAlreadyDeactivated, http.StatusBadRequest},
	{ErrOTPAuth, CodeOTPAuthError, http.StatusInternalServerError},
	{ErrMFAQRCode, CodeMFAQRCodeError, http.StatusInternalServerError},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized},
	{ErrPermissionDenied, CodeForbidden, http.StatusForbidden},
	{identity.ErrNotFound, CodeNotFound, http.StatusNotFound},
	{identity.ErrDuplicate, CodeConflict, http.StatusConflict},
	{ErrBackendUnavailable, CodeServiceUnavailable, http.StatusServiceUnavailable},
}

// CodeFor maps an error returned by the engine to its response code and HTTP
// status. Unrecognized errors map to INTERNAL_SERVER_ERROR; callers should
// log them and must not echo err.Error() to the client.
func CodeFor(err error) (Code, int) {
	if err == nil {
		return CodeOK, http.StatusOK
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return CodeInternalServerError, http.StatusInternalServerError
}

// Known reports whether err maps to a code other than INTERNAL_SERVER_ERROR.
func Known(err error) bool {
	code, _ := CodeFor(err)
	return code != CodeInternalServerError
}
