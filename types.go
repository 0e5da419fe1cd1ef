package challengeAuth

import (
	"io"
	"time"

	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/internal/audit"
	"github.com/MrEthical07/challengeAuth/internal/security"
	"github.com/MrEthical07/challengeAuth/permission"
	"go.uber.org/zap"
)

// JobTypeSendVerificationEmail is the job type that delivers a verification
// code by email.
const JobTypeSendVerificationEmail = "send_verification_email"

// LoginChallenge is returned by InitLogin. Every field is populated whether
// or not the identifier matched an identity.
type LoginChallenge struct {
	SessionID string `json:"sessionId"`
	IV        string `json:"iv"`
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

// LoginResult is the outcome of a successful handshake step. Code is
// CodeAuthenticated when a token was issued; otherwise it names the
// conditional state (EMAIL_NOT_VERIFIED, PASSWORD_EXPIRED, MFA_REQUIRED).
type LoginResult struct {
	Code      Code               `json:"code"`
	Identity  *identity.Identity `json:"user,omitempty"`
	Token     string             `json:"token,omitempty"`
	ExpiresAt *time.Time         `json:"expiresAt,omitempty"`
	MFAKey    string             `json:"key,omitempty"`
}

// Authenticated reports whether a token was issued.
func (r *LoginResult) Authenticated() bool {
	return r != nil && r.Code == CodeAuthenticated && r.Token != ""
}

// MFAActivation is the enrollment payload for an authenticator app.
type MFAActivation struct {
	SecretBase32 string `json:"secret"`
	URI          string `json:"otpauthUrl"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

// Principal is an authenticated caller and its effective grants.
type Principal struct {
	IdentityID int64 `json:"id"`
	permission.Resolved
}

// VerificationEmailPayload is the job payload for
// JobTypeSendVerificationEmail. The code itself stays in Redis; the handler
// reads it from Slot.
type VerificationEmailPayload struct {
	IdentityID int64  `json:"identityId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Slot       int    `json:"slot"`
}

// AuditEvent is one security event. Type is one of the Event* names.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NewAuditLogSink writes audit events to logger.
func NewAuditLogSink(logger *zap.Logger) AuditSink { return audit.NewZapSink(logger) }

// NewAuditJSONSink writes one JSON object per event to w.
func NewAuditJSONSink(w io.Writer) AuditSink { return audit.NewJSONWriterSink(w) }

// SecurityReport is returned by Engine.SecurityReport.
type SecurityReport = security.Report
