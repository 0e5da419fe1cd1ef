package challengeAuth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/internal"
	"github.com/MrEthical07/challengeAuth/internal/rate"
	"github.com/MrEthical07/challengeAuth/internal/stores"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InitLogin starts the handshake for identifier (name or email). The
// response has the same fields whether or not the identifier exists: unknown
// identifiers get a decoy session and a salt derived from the identifier, so
// repeated calls return the same salt just like a real account.
func (e *Engine) InitLogin(ctx context.Context, identifier string) (*LoginChallenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrInvalidRequest
	}

	ident, err := e.store.FindByNameOrEmail(ctx, identifier)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return nil, err
	}

	challenge, err := internal.NewChallenge(e.config.Login.ChallengeLength)
	if err != nil {
		return nil, err
	}
	iv, err := internal.NewHex(e.config.Login.IVBytes)
	if err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()

	record := &stores.LoginSession{IV: iv, Challenge: challenge}
	if ident != nil {
		record.IdentityID = ident.ID
		record.Email = ident.Email
		record.PasswordHash = ident.PasswordHash
		record.Salt = ident.Salt
	} else {
		// Random key material: no ciphertext can match it.
		fakeHash, err := internal.NewHex(32)
		if err != nil {
			return nil, err
		}
		record.Decoy = true
		record.Email = strings.ToLower(identifier)
		record.PasswordHash = fakeHash
		record.Salt = internal.DecoySalt(e.config.Login.DecoySecret, identifier, int(e.config.Password.SaltLength)*2)
		e.metrics.inc(EventLoginDecoy)
	}

	if err := e.sessions.Save(ctx, sessionID, record, e.config.Login.SessionTTL); err != nil {
		e.logger.Error("store login session failed", zap.Error(err))
		return nil, backend(err)
	}
	e.metrics.inc(EventLoginInit)

	return &LoginChallenge{
		SessionID: sessionID,
		IV:        iv,
		Challenge: challenge,
		Salt:      record.Salt,
	}, nil
}

// VerifyChallenge finishes the password step. The session is consumed
// before anything else, so a session id validates at most once.
//
// Errors: ErrWrongChallenge for a missing, expired or replayed session;
// ErrInvalidCredentials for any mismatch; ErrLoginRateLimited when the
// identifier or IP is throttled. Conditional states (unverified email,
// expired password, MFA required) are returned as a LoginResult with the
// matching Code and a nil error.
func (e *Engine) VerifyChallenge(ctx context.Context, sessionID, processedChallenge string, rememberMe bool) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	session, err := e.sessions.Consume(ctx, sessionID)
	if err != nil {
		if errors.Is(err, stores.ErrLoginSessionNotFound) {
			e.metrics.inc(EventLoginReplay)
			e.emit(ctx, EventLoginReplay, 0, "", ErrWrongChallenge)
			return nil, ErrWrongChallenge
		}
		if errors.Is(err, stores.ErrLoginSessionBackend) {
			return nil, backend(err)
		}
		// Undecodable record: treat like a missing session.
		e.logger.Warn("discarding unreadable login session", zap.Error(err))
		return nil, ErrWrongChallenge
	}

	ip := clientIPFromContext(ctx)
	if err := e.loginLimiter.CheckLogin(ctx, session.Email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.inc(EventLoginRateLimited)
			e.emit(ctx, EventLoginRateLimited, session.IdentityID, session.Email, ErrLoginRateLimited)
			return nil, ErrLoginRateLimited
		}
		return nil, backend(err)
	}

	expected, err := e.cipher.Encrypt(session.PasswordHash, session.IV, session.Challenge)
	if err != nil {
		return nil, err
	}
	submitted := strings.ToLower(strings.TrimSpace(processedChallenge))
	matched := subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
	if !matched || session.Decoy {
		return nil, e.loginFailed(ctx, session.IdentityID, session.Email, ip)
	}

	ident, err := e.store.FindByEmail(ctx, session.Email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, e.loginFailed(ctx, session.IdentityID, session.Email, ip)
		}
		return nil, err
	}
	if err := e.loginLimiter.ResetLogin(ctx, session.Email); err != nil {
		e.logger.Warn("reset login throttle failed", zap.Error(err))
	}

	if !ident.EmailVerified() {
		e.metrics.inc(EventEmailNotVerified)
		return &LoginResult{Code: CodeEmailNotVerified}, nil
	}
	if ident.PasswordExpired(e.now()) {
		e.metrics.inc(EventPasswordExpired)
		return &LoginResult{Code: CodePasswordExpired}, nil
	}
	if ident.MFAEnabled() {
		key := uuid.NewString()
		err := e.mfaChallenges.Save(ctx, key, &stores.MFAChallenge{
			IdentityID: ident.ID,
			RememberMe: rememberMe,
		}, e.config.TOTP.ChallengeTTL)
		if err != nil {
			e.logger.Error("store mfa challenge failed", zap.Int64("identity_id", ident.ID), zap.Error(err))
			return nil, backend(err)
		}
		e.metrics.inc(EventMFARequired)
		return &LoginResult{Code: CodeMFARequired, MFAKey: key}, nil
	}

	result, err := e.issueToken(ident, rememberMe)
	if err != nil {
		return nil, err
	}
	e.metrics.inc(EventLoginSuccess)
	e.emit(ctx, EventLoginSuccess, ident.ID, ident.Email, nil)
	e.logger.Info("login succeeded", zap.Int64("identity_id", ident.ID), zap.Bool("remember_me", rememberMe))
	return result, nil
}

func (e *Engine) loginFailed(ctx context.Context, identityID int64, identifier, ip string) error {
	e.metrics.inc(EventLoginFailure)
	e.emit(ctx, EventLoginFailure, identityID, identifier, ErrInvalidCredentials)
	if err := e.loginLimiter.IncrementLogin(ctx, identifier, ip); err != nil {
		e.logger.Warn("record failed login failed", zap.Error(err))
	}
	return ErrInvalidCredentials
}
