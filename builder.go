package challengeAuth

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/internal/audit"
	"github.com/MrEthical07/challengeAuth/internal/rate"
	"github.com/MrEthical07/challengeAuth/internal/stores"
	"github.com/MrEthical07/challengeAuth/jobs"
	"github.com/MrEthical07/challengeAuth/jwt"
	"github.com/MrEthical07/challengeAuth/mailer"
	"github.com/MrEthical07/challengeAuth/password"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder may be used once.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	store      identity.Store
	scheduler  JobScheduler
	mailer     mailer.Mailer
	logger     *zap.Logger
	registerer prometheus.Registerer
	cipher     ChallengeCipher
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for every ephemeral record. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store identity.Store) *Builder {
	b.store = store
	return b
}

// WithScheduler sets the job producer. When unset, Build uses a
// jobs.Scheduler on the same Redis client with default keys.
func (b *Builder) WithScheduler(s JobScheduler) *Builder {
	b.scheduler = s
	return b
}

// WithMailer sets the mailer used by the verification email job. When unset
// messages go to a mailer.Log on the engine logger.
func (b *Builder) WithMailer(m mailer.Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRegisterer registers the engine metrics on reg.
func (b *Builder) WithRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithChallengeCipher replaces the default AES-256-CBC challenge cipher.
func (b *Builder) WithChallengeCipher(c ChallengeCipher) *Builder {
	b.cipher = c
	return b
}

// WithAuditSink receives security events (logins, MFA and grant changes)
// asynchronously. Call Engine.Close to flush them on shutdown.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("identity store required")
	}

	cfg := cloneConfig(b.config)
	if cfg.TOTP.Issuer == "" {
		cfg.TOTP.Issuer = cfg.AppName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	decoyConfigured := len(cfg.Login.DecoySecret) > 0
	if !decoyConfigured {
		cfg.Login.DecoySecret = make([]byte, 32)
		if _, err := rand.Read(cfg.Login.DecoySecret); err != nil {
			return nil, err
		}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	kdf, err := password.New(password.Config{
		Algorithm:   cfg.Password.Algorithm,
		Iterations:  cfg.Password.Iterations,
		KeyLength:   cfg.Password.KeyLength,
		SaltLength:  cfg.Password.SaltLength,
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		scheduler: b.scheduler,
		mailer:    b.mailer,
		logger:    logger,
		metrics:   NewMetrics(b.registerer),
		now:       b.now,
		kdf:       kdf,
		tokens:    tokens,
		cipher:    b.cipher,
		totp:      newTOTPManager(cfg.TOTP),

		decoyConfigured: decoyConfigured,

		sessions:      stores.NewLoginSessionStore(b.redis, cfg.Login.RedisPrefix),
		mfaChallenges: stores.NewMFAChallengeStore(b.redis, cfg.TOTP.ChallengeKeyPrefix),
		enrollments:   stores.NewMFAEnrollmentStore(b.redis, cfg.TOTP.EnrollmentPrefix),
		codes:         stores.NewVerificationCodeStore(b.redis, cfg.EmailVerification.RedisPrefix, cfg.EmailVerification.Slots),
		permCache:     stores.NewPermissionCacheStore(b.redis, cfg.Permission.RedisPrefix),
		loginLimiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		}),
		emailAttempts: rate.NewAttempts(b.redis, "aevf", cfg.Security.MaxCodeAttempts, cfg.Security.CodeAttemptWindow),
		mfaAttempts:   rate.NewAttempts(b.redis, "amf", cfg.Security.MaxCodeAttempts, cfg.Security.CodeAttemptWindow),
	}
	if engine.now == nil {
		engine.now = time.Now
	}
	if engine.cipher == nil {
		engine.cipher = AESCBCCipher{}
	}
	if engine.scheduler == nil {
		engine.scheduler = jobs.NewScheduler(b.redis, jobs.SchedulerConfig{})
	}
	if engine.mailer == nil {
		engine.mailer = mailer.NewLog(logger)
	}
	if b.auditSink != nil {
		engine.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	b.built = true
	return engine, nil
}
