package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by ACCESS_RATE_LIMIT_BACKEND and TAP_COOLDOWN_BACKEND.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendDB     = "db"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Access   AccessConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty URL means Redis is not configured.
type RedisConfig struct {
	URL           string
	PoolSize      int
	DialTimeoutMs int
}

// Enabled reports whether a Redis connection string was provided.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines staff authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// AccessConfig tunes the card tap pipeline.
type AccessConfig struct {
	RateLimitWindowMs          int
	RateLimitMax               int
	RateLimitBackend           string
	TrustedProxyHeader         string
	TerminalAuthCacheTTLMs     int
	TerminalLastSeenThrottleMs int
	TapCooldownMs              int
	TapCooldownBackend         string
	PendingSweepIntervalSec    int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	redisCfg := RedisConfig{
		URL:           os.Getenv("REDIS_URL"),
		PoolSize:      getEnvAsInt("REDIS_POOL_SIZE", 10),
		DialTimeoutMs: getEnvAsInt("REDIS_DIAL_TIMEOUT_MS", 2000),
	}

	defaultCooldownBackend := BackendMemory
	if redisCfg.Enabled() {
		defaultCooldownBackend = BackendRedis
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "access-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 5),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: redisCfg,
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Access: AccessConfig{
			RateLimitWindowMs:          getEnvAsInt("ACCESS_RATE_LIMIT_WINDOW_MS", 5000),
			RateLimitMax:               getEnvAsInt("ACCESS_RATE_LIMIT_MAX", 12),
			RateLimitBackend:           strings.ToLower(getEnv("ACCESS_RATE_LIMIT_BACKEND", BackendMemory)),
			TrustedProxyHeader:         getEnv("ACCESS_TRUSTED_PROXY_HEADER", "CF-Connecting-IP"),
			TerminalAuthCacheTTLMs:     getEnvAsInt("TERMINAL_AUTH_CACHE_TTL_MS", 5000),
			TerminalLastSeenThrottleMs: getEnvAsInt("TERMINAL_LAST_SEEN_THROTTLE_MS", 60000),
			TapCooldownMs:              getEnvAsInt("TAP_COOLDOWN_MS", 3000),
			TapCooldownBackend:         strings.ToLower(getEnv("TAP_COOLDOWN_BACKEND", defaultCooldownBackend)),
			PendingSweepIntervalSec:    getEnvAsInt("PENDING_SWEEP_INTERVAL_SECONDS", 60),
		},
	}

	if err := cfg.Access.validate(cfg.Redis); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a AccessConfig) validate(redis RedisConfig) error {
	switch a.TapCooldownBackend {
	case BackendRedis, BackendMemory, BackendDB:
	default:
		return fmt.Errorf("invalid TAP_COOLDOWN_BACKEND %q", a.TapCooldownBackend)
	}
	switch a.RateLimitBackend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("invalid ACCESS_RATE_LIMIT_BACKEND %q", a.RateLimitBackend)
	}
	if a.TapCooldownBackend == BackendRedis && !redis.Enabled() {
		return fmt.Errorf("TAP_COOLDOWN_BACKEND=redis requires REDIS_URL")
	}
	if a.RateLimitBackend == BackendRedis && !redis.Enabled() {
		return fmt.Errorf("ACCESS_RATE_LIMIT_BACKEND=redis requires REDIS_URL")
	}
	if a.RateLimitMax <= 0 || a.RateLimitWindowMs <= 0 {
		return fmt.Errorf("rate limit window and max must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// RateLimitWindow returns the fixed rate-limit window.
func (a AccessConfig) RateLimitWindow() time.Duration {
	return time.Duration(a.RateLimitWindowMs) * time.Millisecond
}

// TerminalAuthCacheTTL returns how long a verified terminal stays cached.
func (a AccessConfig) TerminalAuthCacheTTL() time.Duration {
	return time.Duration(a.TerminalAuthCacheTTLMs) * time.Millisecond
}

// TerminalLastSeenThrottle returns the minimum gap between last-seen writes.
func (a AccessConfig) TerminalLastSeenThrottle() time.Duration {
	return time.Duration(a.TerminalLastSeenThrottleMs) * time.Millisecond
}

// TapCooldown returns the duplicate tap window.
func (a AccessConfig) TapCooldown() time.Duration {
	return time.Duration(a.TapCooldownMs) * time.Millisecond
}

// PendingSweepInterval returns how often expired pending assignments are cleaned up.
func (a AccessConfig) PendingSweepInterval() time.Duration {
	if a.PendingSweepIntervalSec <= 0 {
		return 0
	}
	return time.Duration(a.PendingSweepIntervalSec) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
