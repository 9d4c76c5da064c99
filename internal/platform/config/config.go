package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process-level configuration.
type Server struct {
	Addr           string
	Environment    string
	RequestTimeout time.Duration
	AllowedOrigins []string
	// TrustedProxies lists CIDRs or IPs whose forwarding headers are believed.
	TrustedProxies []string

	// AuthorityKeyHex is the secp256k1 key used to sign attestations. It is
	// read once at startup and handed to the signer; nothing else keeps it.
	AuthorityKeyHex string

	Admin    AdminConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Lock     LockConfig
	Limit    RateLimitConfig
	Log      LogConfig
}

// AdminConfig configures JWT validation for operator endpoints.
type AdminConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	// DevSigningKey is set when JWTSigningKey fell back to the public
	// development key. Tokens signed with it must never guard real data.
	DevSigningKey bool
}

// DatabaseConfig selects the identity store. An empty URL keeps records in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the distributed issuance lock. An empty URL falls back
// to in-process locking, which is only correct for a single replica.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables streaming audit events. No brokers keeps them in memory.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	Partitions int32
}

// LockConfig bounds per-address issuance locks.
type LockConfig struct {
	TTL         time.Duration
	WaitTimeout time.Duration
}

// RateLimitConfig throttles POST /api/verify per client IP. A zero
// PerWindow disables the limiter.
type RateLimitConfig struct {
	PerWindow int
	Window    time.Duration
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string
	File  string
}

const (
	defaultAddr        = ":5001"
	defaultAuditTopic  = "attestor.audit"
	devAdminSigningKey = "dev-admin-key-change-in-production"
)

// Load reads an optional .env file and then the environment. A missing
// authority key is a hard error: the service must never start unable to sign.
func Load() (*Server, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (*Server, error) {
	cfg := &Server{
		Addr:            envOr("ATTESTOR_ADDR", defaultAddr),
		Environment:     envOr("ENVIRONMENT", "development"),
		AuthorityKeyHex: strings.TrimSpace(os.Getenv("AUTHORITY_PRIVATE_KEY")),
		AllowedOrigins:  splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
		TrustedProxies:  splitList(os.Getenv("TRUSTED_PROXIES")),
		Admin: AdminConfig{
			JWTSigningKey: os.Getenv("ADMIN_JWT_SIGNING_KEY"),
			JWTIssuer:     envOr("ADMIN_JWT_ISSUER", "attestor"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", defaultAuditTopic),
		},
		Log: LogConfig{
			Level: envOr("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.Lock.TTL, err = durationEnv("ISSUANCE_LOCK_TTL", 10*time.Second)
	collect(err)
	cfg.Lock.WaitTimeout, err = durationEnv("ISSUANCE_LOCK_WAIT", 5*time.Second)
	collect(err)

	cfg.Limit.PerWindow, err = intEnv("ISSUANCE_RATE_LIMIT", 30)
	collect(err)
	cfg.Limit.Window, err = durationEnv("ISSUANCE_RATE_WINDOW", time.Minute)
	collect(err)

	cfg.Database.MaxOpenConns, err = intEnv("DATABASE_MAX_OPEN_CONNS", 25)
	collect(err)
	cfg.Database.MaxIdleConns, err = intEnv("DATABASE_MAX_IDLE_CONNS", 5)
	collect(err)
	cfg.Database.ConnMaxLifetime, err = durationEnv("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute)
	collect(err)

	cfg.Redis.PoolSize, err = intEnv("REDIS_POOL_SIZE", 10)
	collect(err)
	cfg.Redis.MinIdleConns, err = intEnv("REDIS_MIN_IDLE_CONNS", 2)
	collect(err)
	cfg.Redis.DialTimeout, err = durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second)
	collect(err)
	cfg.Redis.ReadTimeout, err = durationEnv("REDIS_READ_TIMEOUT", 3*time.Second)
	collect(err)
	cfg.Redis.WriteTimeout, err = durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second)
	collect(err)

	partitions, err := intEnv("KAFKA_AUDIT_PARTITIONS", 3)
	collect(err)
	cfg.Kafka.Partitions = int32(partitions)

	if cfg.AuthorityKeyHex == "" {
		errs = append(errs, errors.New("AUTHORITY_PRIVATE_KEY is required"))
	}
	if cfg.Admin.JWTSigningKey == "" {
		if !cfg.IsDevelopment() {
			errs = append(errs, fmt.Errorf("ADMIN_JWT_SIGNING_KEY is required in %s", cfg.Environment))
		}
		cfg.Admin.JWTSigningKey = devAdminSigningKey
		cfg.Admin.DevSigningKey = true
	}
	if cfg.Lock.WaitTimeout > cfg.Lock.TTL {
		errs = append(errs, fmt.Errorf("ISSUANCE_LOCK_WAIT (%s) must not exceed ISSUANCE_LOCK_TTL (%s)", cfg.Lock.WaitTimeout, cfg.Lock.TTL))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production defaults.
func (s *Server) IsProduction() bool {
	return s.Environment == "production"
}

// IsDevelopment reports whether local-only fallbacks are allowed.
func (s *Server) IsDevelopment() bool {
	return s.Environment == "development" || s.Environment == "test"
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
