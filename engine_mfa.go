package challengeAuth

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"

	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/internal/rate"
	"github.com/MrEthical07/challengeAuth/internal/stores"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// AskMFAActivation starts TOTP enrollment for an authenticated identity. The
// secret lives only in Redis until ConfirmMFAActivation sees a valid code.
func (e *Engine) AskMFAActivation(ctx context.Context, identityID int64) (*MFAActivation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ident, err := e.store.FindByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if ident.MFAEnabled() {
		return nil, ErrMFAAlreadyActivated
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := e.totp.ProvisionURI(secretBase32, ident.Email)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, e.config.TOTP.QRCodeSize)
	if err != nil {
		e.logger.Error("render mfa qr code failed", zap.Error(err))
		return nil, ErrMFAQRCode
	}

	if err := e.enrollments.Save(ctx, identityID, secretBase32, e.config.TOTP.EnrollmentTTL); err != nil {
		return nil, backend(err)
	}

	return &MFAActivation{
		SecretBase32: secretBase32,
		URI:          uri,
		QRCodeURL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// ConfirmMFAActivation makes the pending secret permanent when token is a
// valid code for it. On a wrong code the pending secret stays until its TTL.
func (e *Engine) ConfirmMFAActivation(ctx context.Context, identityID int64, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ident, err := e.store.FindByID(ctx, identityID)
	if err != nil {
		return err
	}
	if ident.MFAEnabled() {
		return ErrMFAAlreadyActivated
	}

	subject := strconv.FormatInt(identityID, 10)
	if err := e.checkAttempts(ctx, e.mfaAttempts, subject); err != nil {
		return err
	}

	secretBase32, err := e.enrollments.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, stores.ErrMFAEnrollmentNotFound) {
			return ErrMFANotActivated
		}
		return backend(err)
	}
	if !e.checkTOTP(secretBase32, token) {
		e.metrics.inc(EventMFAFailure)
		e.emit(ctx, EventMFAFailure, identityID, ident.Email, ErrMFANotActivated)
		return e.wrongCode(ctx, e.mfaAttempts, subject, ErrMFANotActivated)
	}

	if err := e.store.SetMFASecret(ctx, identityID, &secretBase32); err != nil {
		return err
	}
	if err := e.mfaAttempts.Reset(ctx, subject); err != nil {
		e.logger.Warn("reset mfa attempts failed", zap.Int64("identity_id", identityID), zap.Error(err))
	}
	if err := e.enrollments.Delete(ctx, identityID); err != nil {
		e.logger.Warn("delete mfa enrollment failed", zap.Int64("identity_id", identityID), zap.Error(err))
	}
	e.metrics.inc(EventMFAActivated)
	e.emit(ctx, EventMFAActivated, identityID, ident.Email, nil)
	e.logger.Info("mfa activated", zap.Int64("identity_id", identityID))
	return nil
}

// VerifyMFA completes a login that returned MFA_REQUIRED. The challenge key
// is consumed on first use whatever the outcome. rememberMe extends the
// token if either this call or the password step asked for it.
func (e *Engine) VerifyMFA(ctx context.Context, key, token string, rememberMe bool) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	challenge, err := e.mfaChallenges.Consume(ctx, key)
	if err != nil {
		if errors.Is(err, stores.ErrMFAChallengeBackend) {
			return nil, backend(err)
		}
		return nil, ErrWrongChallenge
	}

	subject := strconv.FormatInt(challenge.IdentityID, 10)
	if err := e.checkAttempts(ctx, e.mfaAttempts, subject); err != nil {
		return nil, err
	}

	ident, err := e.store.FindByID(ctx, challenge.IdentityID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			e.metrics.inc(EventMFAFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !ident.MFAEnabled() || !e.checkTOTP(*ident.MFASecret, token) {
		e.metrics.inc(EventMFAFailure)
		e.emit(ctx, EventMFAFailure, ident.ID, ident.Email, ErrInvalidCredentials)
		return nil, e.wrongCode(ctx, e.mfaAttempts, subject, ErrInvalidCredentials)
	}

	if err := e.mfaAttempts.Reset(ctx, subject); err != nil {
		e.logger.Warn("reset mfa attempts failed", zap.Int64("identity_id", ident.ID), zap.Error(err))
	}

	result, err := e.issueToken(ident, rememberMe || challenge.RememberMe)
	if err != nil {
		return nil, err
	}
	e.metrics.inc(EventMFASuccess)
	e.emit(ctx, EventMFASuccess, ident.ID, ident.Email, nil)
	e.logger.Info("mfa login succeeded", zap.Int64("identity_id", ident.ID))
	return result, nil
}

// RemoveMFA clears the permanent secret of an authenticated identity.
func (e *Engine) RemoveMFA(ctx context.Context, identityID int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	ident, err := e.store.FindByID(ctx, identityID)
	if err != nil {
		return err
	}
	if !ident.MFAEnabled() {
		return ErrMFAAlreadyDeactivated
	}
	if err := e.store.SetMFASecret(ctx, identityID, nil); err != nil {
		return err
	}
	e.metrics.inc(EventMFADeactivated)
	e.emit(ctx, EventMFADeactivated, identityID, ident.Email, nil)
	e.logger.Info("mfa deactivated", zap.Int64("identity_id", identityID))
	return nil
}

func (e *Engine) checkTOTP(secretBase32, token string) bool {
	secret, err := decodeTOTPSecret(secretBase32)
	if err != nil {
		e.logger.Warn("undecodable totp secret", zap.Error(err))
		return false
	}
	ok, _, err := e.totp.VerifyCode(secret, token, e.now())
	return err == nil && ok
}

// checkAttempts rejects a subject that used up its wrong-code budget.
func (e *Engine) checkAttempts(ctx context.Context, a *rate.Attempts, subject string) error {
	if err := a.Check(ctx, subject); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return ErrCodeAttemptsExceeded
		}
		return backend(err)
	}
	return nil
}

// wrongCode records a failed guess and returns failure.
func (e *Engine) wrongCode(ctx context.Context, a *rate.Attempts, subject string, failure error) error {
	if err := a.RecordFailure(ctx, subject); err != nil {
		e.logger.Warn("record wrong code failed", zap.String("subject", subject), zap.Error(err))
	}
	return failure
}
