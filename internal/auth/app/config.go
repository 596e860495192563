package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/pkg/cryptox"
	"github.com/joho/godotenv"
)

// Database drivers and session backends accepted in the environment.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"

	SessionBackendDatabase = "database"
	SessionBackendRedis    = "redis"
)

type Config struct {
	Issuer string // issuer claim of step-up tokens (default: stepup-auth)

	DatabaseDriver string // sqlite, mysql or memory (default: sqlite)
	DatabaseDSN    string // sqlite file or mysql DSN (default: auth.db)

	SessionBackend       string        // database or redis (default: database)
	RedisURL             string        // required for the redis backend
	SessionSecret        string        // cookie HMAC key; random per process when empty
	SessionEncryptionKey string        // optional cookie AES key (16, 24 or 32 bytes)
	SessionCookie        string        // cookie name (default: stepup-session)
	SessionTTL           time.Duration // absolute session lifetime (default: 1h)
	CookieSecure         bool          // set the Secure cookie attribute (default: false)
	CORSOrigin           string        // browser origin allowed with credentials

	StepUpSecret  string // HS256 secret; EdDSA keys are used when empty
	StepUpKeyFile string // optional PEM Ed25519 key, created on first start

	MFAIssuer           string // issuer shown in authenticator apps (default: Issuer)
	MFAActivation       string // enroll or verify (default: enroll)
	PasswordAlgorithm   string // bcrypt or argon2id (default: bcrypt)
	DistinctLoginErrors bool   // report unknown user and wrong password separately
	StoreTimeout        time.Duration

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 5000)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired session sweep interval (default: 15m)
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory when one exists.
func LoadConfig() Config {
	_ = godotenv.Load()

	issuer := getEnvOrDefault("AUTH_ISSUER", "stepup-auth")
	return Config{
		Issuer: issuer,

		DatabaseDriver: getEnvOrDefault("AUTH_DATABASE_DRIVER", DriverSQLite),
		DatabaseDSN:    getEnvOrDefault("AUTH_DATABASE_DSN", "auth.db"),

		SessionBackend:       getEnvOrDefault("AUTH_SESSION_BACKEND", SessionBackendDatabase),
		RedisURL:             os.Getenv("AUTH_REDIS_URL"),
		SessionSecret:        os.Getenv("AUTH_SESSION_SECRET"),
		SessionEncryptionKey: os.Getenv("AUTH_SESSION_ENCRYPTION_KEY"),
		SessionCookie:        getEnvOrDefault("AUTH_SESSION_COOKIE", "stepup-session"),
		SessionTTL:           getEnvDurationOrDefault("AUTH_SESSION_TTL", time.Hour),
		CookieSecure:         getEnvBoolOrDefault("AUTH_COOKIE_SECURE", false),
		CORSOrigin:           getEnvOrDefault("AUTH_CORS_ORIGIN", "http://localhost:5173"),

		StepUpSecret:  os.Getenv("AUTH_STEPUP_SECRET"),
		StepUpKeyFile: os.Getenv("AUTH_STEPUP_KEY_FILE"),

		MFAIssuer:           getEnvOrDefault("AUTH_MFA_ISSUER", issuer),
		MFAActivation:       getEnvOrDefault("AUTH_MFA_ACTIVATION", string(service.ActivateOnEnroll)),
		PasswordAlgorithm:   getEnvOrDefault("AUTH_PASSWORD_ALGORITHM", cryptox.AlgorithmBcrypt),
		DistinctLoginErrors: getEnvBoolOrDefault("AUTH_DISTINCT_LOGIN_ERRORS", false),
		StoreTimeout:        getEnvDurationOrDefault("AUTH_STORE_TIMEOUT", 3*time.Second),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 5000),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite, DriverMySQL, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("AUTH_DATABASE_DRIVER: unknown driver %q", c.DatabaseDriver))
	}
	if c.DatabaseDriver != DriverMemory && c.DatabaseDSN == "" {
		errs = append(errs, errors.New("AUTH_DATABASE_DSN is required"))
	}

	switch c.SessionBackend {
	case SessionBackendDatabase:
	case SessionBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("AUTH_REDIS_URL is required for the redis session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_SESSION_BACKEND: unknown backend %q", c.SessionBackend))
	}

	switch len(c.SessionEncryptionKey) {
	case 0, 16, 24, 32:
	default:
		errs = append(errs, errors.New("AUTH_SESSION_ENCRYPTION_KEY must be 16, 24 or 32 bytes"))
	}

	if c.StepUpSecret != "" && len(c.StepUpSecret) < 32 {
		errs = append(errs, errors.New("AUTH_STEPUP_SECRET must be at least 32 bytes"))
	}
	if c.StepUpSecret != "" && c.StepUpKeyFile != "" {
		errs = append(errs, errors.New("AUTH_STEPUP_SECRET and AUTH_STEPUP_KEY_FILE are mutually exclusive"))
	}

	if _, err := service.ParseMFAActivation(c.MFAActivation); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_MFA_ACTIVATION: %w", err))
	}

	switch c.PasswordAlgorithm {
	case cryptox.AlgorithmBcrypt, cryptox.AlgorithmArgon2id:
	default:
		errs = append(errs, fmt.Errorf("AUTH_PASSWORD_ALGORITHM: unknown algorithm %q", c.PasswordAlgorithm))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("AUTH_SESSION_TTL must be positive"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
