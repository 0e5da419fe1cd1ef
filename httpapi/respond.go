package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var messages = map[challengeAuth.Code]string{
	challengeAuth.CodeAuthenticated:         "Authenticated",
	challengeAuth.CodeEmailNotVerified:      "Email address is not verified",
	challengeAuth.CodePasswordExpired:       "Password has expired",
	challengeAuth.CodeMFARequired:           "Multi-factor authentication required",
	challengeAuth.CodeUserCreated:           "User created",
	challengeAuth.CodeVerificationEmailSent: "Verification email sent",
	challengeAuth.CodeEmailConfirmed:        "Email confirmed",
	challengeAuth.CodeMFAActivated:          "MFA activated",
	challengeAuth.CodeMFADeactivated:        "MFA deactivated",
	challengeAuth.CodeWrongChallenge:        "Wrong credentials",
	challengeAuth.CodeWrongChallengeE:       "Wrong credentials",
	challengeAuth.CodeTooManyAttempts:       "Too many failed attempts, try again later",
	challengeAuth.CodeUsernameAlreadyTaken:  "Username or email already taken",
	challengeAuth.CodeWaitTooManyAttempts:   "Too many verification codes requested, wait before asking again",
	challengeAuth.CodeWrongVerificationCode: "Wrong verification code",
	challengeAuth.CodeMFAAlreadyActivated:   "MFA is already activated",
	challengeAuth.CodeMFANotActivated:       "MFA could not be activated",
	challengeAuth.CodeMFAAlreadyDeactivated: "MFA is already deactivated",
	challengeAuth.CodeOTPAuthError:          "Could not generate the authenticator link",
	challengeAuth.CodeMFAQRCodeError:        "Could not generate the QR code",
	challengeAuth.CodeValidationError:       "Validation failed",
	challengeAuth.CodeUnauthorized:          "Unauthorized",
	challengeAuth.CodeForbidden:             "Forbidden",
	challengeAuth.CodeNotFound:              "Not found",
	challengeAuth.CodeConflict:              "Already exists",
	challengeAuth.CodeServiceUnavailable:    "Service temporarily unavailable",
	challengeAuth.CodeInternalServerError:   "Something went wrong",
}

func messageFor(code challengeAuth.Code) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return string(code)
}

// envelope merges code and message into payload.
func envelope(code challengeAuth.Code, payload map[string]any) map[string]any {
	out := map[string]any{
		"code":    code,
		"message": messageFor(code),
	}
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCode(w http.ResponseWriter, status int, code challengeAuth.Code, payload map[string]any) {
	writeJSON(w, status, envelope(code, payload))
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := challengeAuth.CodeFor(err)
	if code == challengeAuth.CodeInternalServerError || code == challengeAuth.CodeServiceUnavailable {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeCode(w, status, code, nil)
}

func writeValidation(w http.ResponseWriter, errs map[string]string) {
	writeCode(w, http.StatusUnprocessableEntity, challengeAuth.CodeValidationError, map[string]any{
		"errors": errs,
	})
}

// decode reads a single JSON object into dst and validates it. On failure
// it writes the response and returns false.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		msg := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeValidation(w, map[string]string{"body": msg})
		return false
	}

	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			a.writeError(w, r, err)
			return false
		}
		writeValidation(w, fieldMessages(verrs))
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessages(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out[field] = field + " is required"
		case "email":
			out[field] = field + " must be a valid email address"
		case "gt":
			out[field] = field + " must be a positive number"
		case "numeric":
			out[field] = field + " must contain digits only"
		default:
			out[field] = field + " is invalid"
		}
	}
	return out
}
