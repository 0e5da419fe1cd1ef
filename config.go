package challengeAuth

import (
	"errors"
	"time"

	"github.com/MrEthical07/challengeAuth/password"
)

// Config holds every engine knob. Start from [DefaultConfig] and override.
type Config struct {
	AppName           string
	Token             TokenConfig
	Login             LoginConfig
	Password          PasswordConfig
	TOTP              TOTPConfig
	EmailVerification EmailVerificationConfig
	Permission        PermissionConfig
	Security          SecurityConfig
	Jobs              JobsConfig
	Audit             AuditConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls bearer tokens. PrivateKey is the HS256 secret, or the
// Ed25519 signing key when SigningMethod is "ed25519".
type TokenConfig struct {
	TTL           time.Duration
	RememberMeTTL time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls the challenge handshake. DecoySecret keys the salts
// returned for unknown identifiers; Build generates one when empty, which
// makes decoy salts stable only for the life of the process.
type LoginConfig struct {
	SessionTTL      time.Duration
	ChallengeLength int
	IVBytes         int
	DecoySecret     []byte
	RedisPrefix     string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Algorithm  string // password.AlgorithmPBKDF2 (default) or password.AlgorithmArgon2ID
	Iterations uint32
	KeyLength  uint32
	SaltLength uint32

	Memory      uint32 // KB, argon2id only
	Time        uint32
	Parallelism uint8

	// ValidityMonths is added to the creation time to get password expiry.
	ValidityMonths int
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer             string
	Digits             int
	Period             int
	Algorithm          string
	Skew               int
	EnrollmentTTL      time.Duration
	ChallengeTTL       time.Duration
	QRCodeSize         int
	EnrollmentPrefix   string
	ChallengeKeyPrefix string
}

/*
====================================
EMAIL VERIFICATION CONFIG
====================================
*/

// EmailVerificationConfig controls slotted verification codes. A new code
// is refused while the last slot is live.
type EmailVerificationConfig struct {
	Slots                  int
	CodeTTL                time.Duration
	CodeLength             int
	InvalidateSiblingCodes bool
	Sender                 string
	Subject                string
	RedisPrefix            string
}

/*
====================================
PERMISSION CONFIG
====================================
*/

type PermissionConfig struct {
	CacheTTL    time.Duration
	RedisPrefix string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig throttles failed handshakes per identifier and, when
// enabled, per client IP. MaxLoginAttempts 0 disables the throttle.
// MaxCodeAttempts bounds wrong email verification and TOTP codes per
// subject within CodeAttemptWindow; 0 disables it.
type SecurityConfig struct {
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	EnableIPThrottle      bool
	MaxCodeAttempts       int
	CodeAttemptWindow     time.Duration
}

/*
====================================
JOBS CONFIG
====================================
*/

type JobsConfig struct {
	VerificationEmailType string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig buffers security events for the sink set with
// Builder.WithAuditSink. Without a sink nothing is dispatched.
type AuditConfig struct {
	BufferSize int
	DropIfFull bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Token.PrivateKey must still
// be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		AppName: "challengeAuth",
		Token: TokenConfig{
			TTL:           24 * time.Hour,
			RememberMeTTL: 30 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Login: LoginConfig{
			SessionTTL:      300 * time.Second,
			ChallengeLength: 64,
			IVBytes:         16,
			RedisPrefix:     "als",
		},
		Password: PasswordConfig{
			Algorithm:      password.AlgorithmPBKDF2,
			Iterations:     10000,
			KeyLength:      64,
			SaltLength:     16,
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			ValidityMonths: 1,
		},
		TOTP: TOTPConfig{
			Digits:             6,
			Period:             30,
			Algorithm:          "SHA1",
			Skew:               1,
			EnrollmentTTL:      600 * time.Second,
			ChallengeTTL:       180 * time.Second,
			QRCodeSize:         256,
			EnrollmentPrefix:   "ame",
			ChallengeKeyPrefix: "amc",
		},
		EmailVerification: EmailVerificationConfig{
			Slots:                  3,
			CodeTTL:                time.Hour,
			CodeLength:             6,
			InvalidateSiblingCodes: true,
			Subject:                "Verify your email address",
			RedisPrefix:            "aev",
		},
		Permission: PermissionConfig{
			CacheTTL:    600 * time.Second,
			RedisPrefix: "apc",
		},
		Security: SecurityConfig{
			MaxLoginAttempts:      10,
			LoginCooldownDuration: 15 * time.Minute,
			EnableIPThrottle:      false,
			MaxCodeAttempts:       5,
			CodeAttemptWindow:     15 * time.Minute,
		},
		Jobs: JobsConfig{
			VerificationEmailType: JobTypeSendVerificationEmail,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Login.DecoySecret = cloneBytes(cfg.Login.DecoySecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// Token
	if c.Token.TTL <= 0 || c.Token.RememberMeTTL <= 0 {
		return errors.New("Token TTL and RememberMeTTL must be > 0")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) < 16 {
			return errors.New("hs256 requires a PrivateKey of at least 16 bytes")
		}
	case "ed25519":
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}

	// Login
	if c.Login.SessionTTL <= 0 {
		return errors.New("Login SessionTTL must be > 0")
	}
	if c.Login.ChallengeLength < 16 {
		return errors.New("Login ChallengeLength must be >= 16")
	}
	if c.Login.IVBytes != 16 {
		return errors.New("Login IVBytes must be 16 (AES block size)")
	}

	// Password
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.ValidityMonths <= 0 {
		return errors.New("Password ValidityMonths must be > 0")
	}

	// TOTP
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP Digits must be between 6 and 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be between 0 and 3")
	}
	if _, err := hmacFunc(c.TOTP.Algorithm); err != nil {
		return err
	}
	if c.TOTP.EnrollmentTTL <= 0 || c.TOTP.ChallengeTTL <= 0 {
		return errors.New("TOTP EnrollmentTTL and ChallengeTTL must be > 0")
	}
	if c.TOTP.QRCodeSize < 64 {
		return errors.New("TOTP QRCodeSize must be >= 64")
	}

	// Email verification
	if c.EmailVerification.Slots < 1 {
		return errors.New("EmailVerification Slots must be >= 1")
	}
	if c.EmailVerification.CodeTTL <= 0 {
		return errors.New("EmailVerification CodeTTL must be > 0")
	}
	if c.EmailVerification.CodeLength < 4 || c.EmailVerification.CodeLength > 16 {
		return errors.New("EmailVerification CodeLength must be between 4 and 16")
	}

	// Permission
	if c.Permission.CacheTTL <= 0 {
		return errors.New("Permission CacheTTL must be > 0")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0 when the throttle is on")
	}

	if c.Security.MaxCodeAttempts < 0 {
		return errors.New("Security MaxCodeAttempts must be >= 0")
	}
	if c.Security.MaxCodeAttempts > 0 && c.Security.CodeAttemptWindow <= 0 {
		return errors.New("Security CodeAttemptWindow must be > 0 when MaxCodeAttempts is set")
	}

	if c.Audit.BufferSize < 0 {
		return errors.New("Audit BufferSize must be >= 0")
	}

	if c.Jobs.VerificationEmailType == "" {
		return errors.New("Jobs VerificationEmailType must be set")
	}

	return nil
}
