// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends accepted by IDENTITY_STORE and SESSION_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
)

// Password hashers accepted by PASSWORD_HASHER.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// minProductionSecret is the minimum JWT secret length when APP_ENV=production.
const minProductionSecret = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// MetricsAddr serves /metrics over HTTP; empty disables it.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env       string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// DatabaseURL is the Postgres DSN; required when either store is postgres.
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// IdentityStore is memory, postgres or mongo.
	IdentityStore string `mapstructure:"IDENTITY_STORE"`
	// SessionStore is memory, postgres or redis.
	SessionStore string `mapstructure:"SESSION_STORE"`

	// JWTIssuer is the iss claim of issued tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessSecret and JWTRefreshSecret are the HS256 keys; both required and distinct.
	JWTAccessSecret  string `mapstructure:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token and session lifetime (e.g. "336h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// PasswordHasher is bcrypt or argon2id.
	PasswordHasher string `mapstructure:"PASSWORD_HASHER"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// ActivationTTLRaw is the activation token lifetime (e.g. "30m").
	ActivationTTLRaw string `mapstructure:"ACTIVATION_TTL"`
	// RequestTimeoutRaw bounds each gRPC call (e.g. "10s").
	RequestTimeoutRaw string `mapstructure:"REQUEST_TIMEOUT"`
	DefaultCurrency   string `mapstructure:"DEFAULT_CURRENCY"`
	// DevInboxEnabled serves credential.v1.DevService/GetActivationToken. Rejected when APP_ENV=production.
	DevInboxEnabled bool `mapstructure:"DEV_INBOX_ENABLED"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When empty, activation emails are logged and security events are not published to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// ActivationEmailTopic receives activation-mail requests.
	ActivationEmailTopic string `mapstructure:"ACTIVATION_EMAIL_TOPIC"`
	// SecurityEventsTopic receives security and grpc_request events.
	SecurityEventsTopic string `mapstructure:"SECURITY_EVENTS_TOPIC"`

	// OTel (optional). Empty endpoint disables export.
	OTELEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "credentials")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDENTITY_STORE", StoreMemory)
	v.SetDefault("SESSION_STORE", StoreMemory)
	v.SetDefault("JWT_ISSUER", "credential-lifecycle")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "336h") // 14d
	v.SetDefault("PASSWORD_HASHER", HasherBcrypt)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("ACTIVATION_TTL", "30m")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("DEFAULT_CURRENCY", "USD")
	v.SetDefault("DEV_INBOX_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ACTIVATION_EMAIL_TOPIC", "credential-activation-email")
	v.SetDefault("SECURITY_EVENTS_TOPIC", "credential-security-events")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "credential-lifecycle")
}

func (c *Config) normalize() {
	c.IdentityStore = strings.ToLower(strings.TrimSpace(c.IdentityStore))
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	c.PasswordHasher = strings.ToLower(strings.TrimSpace(c.PasswordHasher))
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.IsProduction() && (len(c.JWTAccessSecret) < minProductionSecret || len(c.JWTRefreshSecret) < minProductionSecret) {
		return fmt.Errorf("config: JWT secrets must be at least %d bytes when APP_ENV=production", minProductionSecret)
	}
	if c.IsProduction() && c.DevInboxEnabled {
		return errors.New("config: DEV_INBOX_ENABLED must be false when APP_ENV=production")
	}
	access, err := parsePositive("JWT_ACCESS_TTL", c.JWTAccessTTL)
	if err != nil {
		return err
	}
	refresh, err := parsePositive("JWT_REFRESH_TTL", c.JWTRefreshTTL)
	if err != nil {
		return err
	}
	if access >= refresh {
		return errors.New("config: JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if _, err := parsePositive("ACTIVATION_TTL", c.ActivationTTLRaw); err != nil {
		return err
	}
	if c.RequestTimeoutRaw != "" {
		if _, err := time.ParseDuration(c.RequestTimeoutRaw); err != nil {
			return fmt.Errorf("config: REQUEST_TIMEOUT: %w", err)
		}
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	switch c.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return fmt.Errorf("config: PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher)
	}

	switch c.IdentityStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when IDENTITY_STORE=postgres")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGO_URI must be set when IDENTITY_STORE=mongo")
		}
	default:
		return fmt.Errorf("config: IDENTITY_STORE must be memory, postgres or mongo, got %q", c.IdentityStore)
	}
	switch c.SessionStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when SESSION_STORE=postgres")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("config: SESSION_STORE must be memory, postgres or redis, got %q", c.SessionStore)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 336h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 336*time.Hour)
}

// ActivationTTL parses ActivationTTLRaw. Returns 30m if unset or invalid.
func (c *Config) ActivationTTL() time.Duration {
	return durationOr(c.ActivationTTLRaw, 30*time.Minute)
}

// RequestTimeout parses RequestTimeoutRaw. Returns 10s if unset or invalid; "0s" disables the bound.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeoutRaw)
	if err != nil || d < 0 {
		return 10 * time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka is enabled (non-empty list) and to create producers.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// UsesPostgres reports whether any store needs DATABASE_URL.
func (c *Config) UsesPostgres() bool {
	return c.IdentityStore == StorePostgres || c.SessionStore == StorePostgres
}

func parsePositive(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DatabaseURLFromEnv reads only DATABASE_URL (from .env or the environment).
// Used by tools such as cmd/migrate that do not need the full service config.
func DatabaseURLFromEnv() string {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	return strings.TrimSpace(v.GetString("DATABASE_URL"))
}
