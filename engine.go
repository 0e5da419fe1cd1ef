package challengeAuth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/internal/audit"
	"github.com/MrEthical07/challengeAuth/internal/rate"
	"github.com/MrEthical07/challengeAuth/internal/security"
	"github.com/MrEthical07/challengeAuth/internal/stores"
	"github.com/MrEthical07/challengeAuth/jobs"
	"github.com/MrEthical07/challengeAuth/jwt"
	"github.com/MrEthical07/challengeAuth/mailer"
	"github.com/MrEthical07/challengeAuth/password"
	"go.uber.org/zap"
)

// JobScheduler is the producer side of the job queue. *jobs.Scheduler
// satisfies it.
type JobScheduler interface {
	Schedule(ctx context.Context, job *jobs.Job) error
}

// Engine runs the login handshake, MFA, email verification and
// authorization operations. Build it with [New].
type Engine struct {
	config Config

	store     identity.Store
	scheduler JobScheduler
	mailer    mailer.Mailer
	logger    *zap.Logger
	metrics   *Metrics
	audit     *audit.Dispatcher
	now       func() time.Time

	sessions      *stores.LoginSessionStore
	mfaChallenges *stores.MFAChallengeStore
	enrollments   *stores.MFAEnrollmentStore
	codes         *stores.VerificationCodeStore
	permCache     *stores.PermissionCacheStore
	loginLimiter  *rate.Limiter
	emailAttempts *rate.Attempts
	mfaAttempts   *rate.Attempts

	kdf    password.KDF
	tokens *jwt.Manager
	cipher ChallengeCipher
	totp   *totpManager

	decoyConfigured bool
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// SecurityReport summarizes the running configuration and lists settings
// that weaken it.
func (e *Engine) SecurityReport() SecurityReport {
	c := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: c.Token.SigningMethod,
		TokenTTL:         c.Token.TTL,
		RememberMeTTL:    c.Token.RememberMeTTL,
		LoginSessionTTL:  c.Login.SessionTTL,
		KDF: security.KDFReport{
			Algorithm:   e.kdf.Algorithm(),
			Iterations:  c.Password.Iterations,
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		TOTPSkew:               c.TOTP.Skew,
		DecoySecretConfigured:  e.decoyConfigured,
		MaxLoginAttempts:       c.Security.MaxLoginAttempts,
		LoginCooldownDuration:  c.Security.LoginCooldownDuration,
		EnableIPThrottle:       c.Security.EnableIPThrottle,
		VerificationSlots:      c.EmailVerification.Slots,
		InvalidateSiblingCodes: c.EmailVerification.InvalidateSiblingCodes,
		PermissionCacheTTL:     c.Permission.CacheTTL,
		AuditSinkConfigured:    e.audit != nil,
	})
}

// EventCounts returns how often each engine event has occurred since Build.
func (e *Engine) EventCounts() map[string]uint64 {
	return e.metrics.Snapshot()
}

// AuditDropped is the number of audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close flushes pending audit events. The engine stays usable but emits no
// further audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return nil
}

// issueToken signs a bearer token for ident and builds the authenticated
// result.
func (e *Engine) issueToken(ident *identity.Identity, rememberMe bool) (*LoginResult, error) {
	ttl := e.config.Token.TTL
	if rememberMe {
		ttl = e.config.Token.RememberMeTTL
	}
	token, expiresAt, err := e.tokens.CreateAccess(ident.ID, ttl)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &LoginResult{
		Code:      CodeAuthenticated,
		Identity:  ident,
		Token:     token,
		ExpiresAt: &expiresAt,
	}, nil
}

// emit sends a security event to the audit sink, if one is configured.
func (e *Engine) emit(ctx context.Context, event string, identityID int64, identifier string, err error) {
	if e.audit == nil {
		return
	}
	ev := audit.Event{
		Timestamp:  e.now().UTC(),
		Type:       event,
		IdentityID: identityID,
		Identifier: identifier,
		IP:         clientIPFromContext(ctx),
		Success:    err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.audit.Emit(ctx, ev)
}

// backend wraps infrastructure failures so CodeFor maps them to 503 while
// keeping the cause for logs.
func backend(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
