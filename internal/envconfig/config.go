// Package envconfig loads process configuration for the server binary.
//
// Sources, later ones winning: built-in defaults, an optional YAML file,
// a .env file, the process environment. Keys are the upper-case
// environment names; the YAML file uses the same names in lower case.
package envconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultConfigFile = "config.yaml"

type Config struct {
	AppName         string `koanf:"app_name"`
	AppEmailAddress string `koanf:"app_email_address"`
	HTTPAddr        string `koanf:"http_addr"`

	DBDriver   string `koanf:"db_driver"`
	DBHost     string `koanf:"db_host"`
	DBPort     int    `koanf:"db_port"`
	DBUser     string `koanf:"db_user"`
	DBPassword string `koanf:"db_password"`
	DBName     string `koanf:"db_name"`
	DBSSLMode  string `koanf:"db_sslmode"`

	// RedisURL empty starts an in-process miniredis. Development only.
	RedisURL string `koanf:"redis_url"`

	JWTSecret   string `koanf:"jwt_secret"`
	DecoySecret string `koanf:"decoy_secret"`

	SMTPAddr     string `koanf:"smtp_addr"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`

	JobsInterval time.Duration `koanf:"jobs_interval"`
	JobsLeaseTTL time.Duration `koanf:"jobs_lease_ttl"`

	LogLevel string `koanf:"log_level"`
	LogDev   bool   `koanf:"log_dev"`

	RateLimitRPS      float64 `koanf:"rate_limit_rps"`
	RateLimitBurst    int     `koanf:"rate_limit_burst"`
	TrustForwardedFor bool    `koanf:"trust_forwarded_for"`
	MaxLoginAttempts  int     `koanf:"max_login_attempts"`
}

func defaults() Config {
	return Config{
		AppName:          "challengeAuth",
		HTTPAddr:         ":8080",
		DBDriver:         "postgres",
		DBPort:           5432,
		DBSSLMode:        "disable",
		JobsInterval:     5 * time.Second,
		JobsLeaseTTL:     15 * time.Second,
		LogLevel:         "info",
		RateLimitRPS:     20.0 / 60.0,
		RateLimitBurst:   20,
		MaxLoginAttempts: 10,
	}
}

// Load reads the configuration. configFile may be empty; CONFIG_FILE or
// config.yaml is used when present.
func Load(configFile string) (*Config, error) {
	// best effort: a missing .env is normal outside development
	_ = godotenv.Load()

	k := koanf.New(".")

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			configFile = defaultConfigFile
		}
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(key), value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config failed")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	switch c.DBDriver {
	case "postgres", "pgx":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JobsInterval <= 0 {
		return errors.New("JOBS_INTERVAL must be > 0")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be >= 0")
	}
	return nil
}

// UseDatabase reports whether a relational store is configured. Without
// DB_HOST the server keeps identities in memory.
func (c *Config) UseDatabase() bool {
	return c.DBHost != ""
}

// DSN is the libpq keyword/value connection string; both drivers accept it.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
