package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir        string        `mapstructure:"MIGRATIONS_DIR"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL         time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	StorageDir           string        `mapstructure:"STORAGE_DIR"`
	StorageEncryptionKey string        `mapstructure:"STORAGE_ENCRYPTION_KEY"`
	StorageVersioning    bool          `mapstructure:"STORAGE_VERSIONING"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	SMTPAddr             string        `mapstructure:"SMTP_ADDR"`
	SMTPUsername         string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword         string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom             string        `mapstructure:"SMTP_FROM"`
	SeedOnStart          bool          `mapstructure:"SEED_ON_START"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_TOKEN_TTL", "CORS_ORIGINS",
	"STORAGE_DIR", "STORAGE_ENCRYPTION_KEY", "STORAGE_VERSIONING",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SMTP_ADDR", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "SEED_ON_START",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("AUTH_ISSUER", "nursebridge")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORAGE_DIR", "./data/objects")
	v.SetDefault("STORAGE_VERSIONING", true)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("SMTP_FROM", "no-reply@nursebridge.local")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// MailEnabled reports whether an SMTP relay is configured. Without one,
// email is only logged.
func (c *Config) MailEnabled() bool {
	return c.SMTPAddr != ""
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key of at least 32 bytes is required. When a storage encryption
// key is present it must be 64 hex characters; production requires one.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters outside development (ENV=%q)", c.Env)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.AuthTokenTTL)
	}

	if c.SMTPUsername != "" && c.SMTPAddr == "" {
		return fmt.Errorf("SMTP_USERNAME is set but SMTP_ADDR is empty")
	}

	if c.IsProduction() && c.StorageEncryptionKey == "" {
		return fmt.Errorf("STORAGE_ENCRYPTION_KEY is required in production")
	}
	if c.StorageEncryptionKey != "" {
		if _, err := c.EncryptionKey(); err != nil {
			return err
		}
	}
	return nil
}

// EncryptionKey decodes STORAGE_ENCRYPTION_KEY. A nil key with a nil error
// means encryption at rest is disabled.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.StorageEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.StorageEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("STORAGE_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("STORAGE_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}
