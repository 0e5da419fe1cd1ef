package challengeAuth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"text/template"

	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/internal"
	"github.com/MrEthical07/challengeAuth/internal/stores"
	"github.com/MrEthical07/challengeAuth/jobs"
	"github.com/MrEthical07/challengeAuth/mailer"
	"github.com/MrEthical07/challengeAuth/password"
	"go.uber.org/zap"
)

var verificationEmailTemplate = template.Must(template.New("verification").Parse(
	`Hello {{.Name}},

your {{.AppName}} verification code is: {{.Code}}

It expires in {{.TTL}}. If you did not create an account, ignore this email.
`))

// Register creates an identity, issues its first verification code and
// schedules the verification email. A failure to queue the email is logged
// and does not fail the registration; the user can ask for a new code.
func (e *Engine) Register(ctx context.Context, name, email, pw string) (*identity.Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || pw == "" {
		return nil, ErrInvalidRequest
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidRequest
	}

	for _, candidate := range []string{name, email} {
		_, err := e.store.FindByNameOrEmail(ctx, candidate)
		if err == nil {
			return nil, ErrIdentityExists
		}
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, err
		}
	}

	salt, err := password.NewSalt(e.config.Password.SaltLength)
	if err != nil {
		return nil, err
	}
	hash, err := e.kdf.Derive(pw, salt)
	if err != nil {
		return nil, err
	}

	now := e.now()
	ident := &identity.Identity{
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		Salt:              salt,
		PasswordExpiresAt: now.AddDate(0, e.config.Password.ValidityMonths, 0),
	}
	if err := e.store.Create(ctx, ident); err != nil {
		if errors.Is(err, identity.ErrDuplicate) {
			return nil, ErrIdentityExists
		}
		return nil, err
	}
	e.metrics.inc(EventRegistration)
	e.emit(ctx, EventRegistration, ident.ID, ident.Email, nil)
	e.logger.Info("identity registered", zap.Int64("identity_id", ident.ID))

	if err := e.queueVerificationEmail(ctx, ident); err != nil {
		e.logger.Error("queue verification email after registration failed",
			zap.Int64("identity_id", ident.ID), zap.Error(err))
	}
	return ident, nil
}

// SendVerificationEmail issues a new code for email and queues it. Unknown
// and already verified addresses succeed silently. While every slot is in
// use it returns ErrVerificationRateLimited.
func (e *Engine) SendVerificationEmail(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ident, err := e.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil
		}
		return err
	}
	if ident.EmailVerified() {
		return nil
	}
	return e.queueVerificationEmail(ctx, ident)
}

func (e *Engine) queueVerificationEmail(ctx context.Context, ident *identity.Identity) error {
	code, err := internal.NewVerificationCode(e.config.EmailVerification.CodeLength)
	if err != nil {
		return err
	}
	slot, err := e.codes.Issue(ctx, ident.ID, code, e.config.EmailVerification.CodeTTL)
	if err != nil {
		if errors.Is(err, stores.ErrVerificationSlotsExhausted) {
			e.metrics.inc(EventVerificationExhausted)
			return ErrVerificationRateLimited
		}
		return backend(err)
	}
	e.metrics.inc(EventVerificationIssued)

	job, err := jobs.NewJob(e.config.Jobs.VerificationEmailType, VerificationEmailPayload{
		IdentityID: ident.ID,
		Email:      ident.Email,
		Name:       ident.Name,
		Slot:       slot,
	}, e.now())
	if err != nil {
		return err
	}
	if err := e.scheduler.Schedule(ctx, job); err != nil {
		return backend(err)
	}
	e.logger.Debug("verification email queued",
		zap.Int64("identity_id", ident.ID), zap.Int("slot", slot), zap.String("job_id", job.ID))
	return nil
}

// VerifyEmail confirms email when code matches any live slot. Unknown,
// already verified and mismatched cases all return ErrWrongVerificationCode.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	subject := strings.ToLower(email)
	if err := e.checkAttempts(ctx, e.emailAttempts, subject); err != nil {
		return err
	}
	ident, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return e.wrongCode(ctx, e.emailAttempts, subject, ErrWrongVerificationCode)
		}
		return err
	}
	if ident.EmailVerified() {
		return e.wrongCode(ctx, e.emailAttempts, subject, ErrWrongVerificationCode)
	}

	ok, err := e.codes.Consume(ctx, ident.ID, strings.TrimSpace(code), e.config.EmailVerification.InvalidateSiblingCodes)
	if err != nil && !ok {
		return backend(err)
	}
	if err != nil {
		// The code matched; only sibling cleanup failed.
		e.logger.Warn("invalidate sibling verification codes failed", zap.Int64("identity_id", ident.ID), zap.Error(err))
	}
	if !ok {
		return e.wrongCode(ctx, e.emailAttempts, subject, ErrWrongVerificationCode)
	}
	if err := e.emailAttempts.Reset(ctx, subject); err != nil {
		e.logger.Warn("reset verification attempts failed", zap.Int64("identity_id", ident.ID), zap.Error(err))
	}

	if err := e.store.MarkEmailVerified(ctx, ident.ID, e.now()); err != nil {
		return err
	}
	e.metrics.inc(EventEmailConfirmed)
	e.emit(ctx, EventEmailConfirmed, ident.ID, ident.Email, nil)
	e.logger.Info("email confirmed", zap.Int64("identity_id", ident.ID))
	return nil
}

// VerificationEmailHandler delivers the code stored in the payload's slot.
// A code that expired or was used before delivery is skipped, not retried.
func (e *Engine) VerificationEmailHandler() jobs.Handler {
	return jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) error {
		var payload VerificationEmailPayload
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode verification payload: %w", err)
		}

		code, err := e.codes.Peek(ctx, payload.IdentityID, payload.Slot)
		if err != nil {
			if errors.Is(err, stores.ErrVerificationCodeNotFound) {
				e.logger.Info("verification code gone before delivery",
					zap.Int64("identity_id", payload.IdentityID), zap.Int("slot", payload.Slot))
				return nil
			}
			return err
		}

		var body bytes.Buffer
		err = verificationEmailTemplate.Execute(&body, struct {
			Name, AppName, Code, TTL string
		}{
			Name:    payload.Name,
			AppName: e.config.AppName,
			Code:    code,
			TTL:     e.config.EmailVerification.CodeTTL.String(),
		})
		if err != nil {
			return err
		}

		return e.mailer.Send(ctx, mailer.Message{
			From:    e.sender(),
			To:      payload.Email,
			Subject: e.config.EmailVerification.Subject,
			Text:    body.String(),
		})
	})
}

func (e *Engine) sender() string {
	if e.config.EmailVerification.Sender != "" {
		return e.config.EmailVerification.Sender
	}
	return "no-reply@" + strings.ToLower(strings.ReplaceAll(e.config.AppName, " ", "")) + ".local"
}
