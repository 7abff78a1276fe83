package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chatrelay/internal/constants"
	"chatrelay/internal/models"
	"chatrelay/internal/security"

	"github.com/sirupsen/logrus"
)

var (
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
	ErrInvalidPort        = models.ConfigError{Message: "server port must be between 1 and 65535"}
	ErrInvalidLogLevel    = models.ConfigError{Message: "invalid log level"}
	ErrInvalidSampleRate  = models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	ErrMissingJWTSecret   = models.ConfigError{Message: "JWT secret is required in production (set JWT_SECRET_KEY environment variable)"}
	ErrWeakJWTSecret      = models.ConfigError{Message: "JWT secret must be at least 32 characters long"}
	ErrDebugInProduction  = models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	ErrMissingEncryptKey  = models.ConfigError{Message: "encryption enabled but CHATRELAY_ENCRYPTION_SECRET is not set"}
	ErrWeakEncryptionKey  = models.ConfigError{Message: "encryption secret must be at least 32 characters long"}
	ErrInvalidBcryptCost  = models.ConfigError{Message: "bcrypt cost must be between 4 and 31"}
	ErrInvalidRetryConfig = models.ConfigError{Message: "retry backoff must not be negative"}
)

const minSecretLength = 32

// Default returns a configuration with every default applied and no file.
func Default() *models.Config {
	c := &models.Config{}
	setDefaults(c)
	return c
}

// LoadConfig reads the JSON file at path, applies defaults and environment
// overrides, then validates the result. An empty path loads defaults only.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvironmentOverrides(&config)
	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// IsProduction reports whether CHATRELAY_ENV selects production mode.
func IsProduction() bool {
	return os.Getenv("CHATRELAY_ENV") == "production"
}

func setDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ClientURL == "" {
		c.Server.ClientURL = constants.DefaultClientURL
	}
	if c.Server.ReadHeaderTimeoutSec <= 0 {
		c.Server.ReadHeaderTimeoutSec = constants.DefaultServerReadHeaderTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		c.Server.ShutdownTimeoutSec = constants.DefaultGracefulShutdownSec
	}
	if c.Server.MaxRequestBodyBytes <= 0 {
		c.Server.MaxRequestBodyBytes = constants.DefaultMaxRequestBodyBytes
	}

	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = constants.DefaultDatabaseMaxOpen
	}

	if c.Auth.TokenTTLSec <= 0 {
		c.Auth.TokenTTLSec = constants.DefaultTokenTTLSec
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = constants.DefaultBcryptCost
	}

	if c.Relay.DedupRetentionSec <= 0 {
		c.Relay.DedupRetentionSec = constants.DefaultDedupRetentionSec
	}
	if c.Relay.MaintenanceIntervalSec <= 0 {
		c.Relay.MaintenanceIntervalSec = constants.DefaultMaintenanceIntervalSec
	}
	if c.Relay.WriteTimeoutSec <= 0 {
		c.Relay.WriteTimeoutSec = constants.DefaultWSWriteTimeoutSec
	}
	if c.Relay.PingIntervalSec <= 0 {
		c.Relay.PingIntervalSec = constants.DefaultWSPingIntervalSec
	}
	if c.Relay.ReadLimitBytes <= 0 {
		c.Relay.ReadLimitBytes = constants.DefaultWSReadLimitBytes
	}

	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
		if IsProduction() {
			c.Tracing.Environment = "production"
		}
	}

	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func validate(c *models.Config) error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return ErrMissingDBPath
	}
	if !security.IsSQLiteMemoryPath(c.Database.Path) {
		if err := security.ValidateFilePath(c.Database.Path); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
		}
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return ErrInvalidBcryptCost
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	if c.Retry.InitialBackoffMs < 0 || c.Retry.MaxBackoffMs < 0 {
		return ErrInvalidRetryConfig
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("%s: %q", ErrInvalidLogLevel.Message, c.LogLevel)}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		} else {
			fmt.Fprintf(os.Stderr, "WARNING: ignoring invalid PORT value %q\n", port)
		}
	}
	if url := os.Getenv("CLIENT_URL"); url != "" {
		c.Server.ClientURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// SECURITY: secrets are only read from the environment
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("CHATRELAY_ENCRYPTION_SECRET"); secret != "" {
		c.Database.EncryptionSecret = secret
	}

	if v, ok := envBool("CHATRELAY_ENABLE_ENCRYPTION"); ok {
		c.Database.EnableEncryption = v
	}
	if v, ok := envBool("CHATRELAY_REQUIRE_WS_TOKEN"); ok {
		c.Auth.RequireWSToken = v
	}
	if level := os.Getenv("CHATRELAY_LOG_LEVEL"); level != "" {
		c.LogLevel = strings.ToLower(level)
	}
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: ignoring invalid %s value %q\n", key, raw)
		return false, false
	}
	return v, true
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if c.Database.EnableEncryption {
		if c.Database.EncryptionSecret == "" {
			return ErrMissingEncryptKey
		}
		if len(c.Database.EncryptionSecret) < minSecretLength {
			return ErrWeakEncryptionKey
		}
	}

	if IsProduction() {
		if c.Auth.JWTSecret == "" {
			return ErrMissingJWTSecret
		}
		if len(c.Auth.JWTSecret) < minSecretLength {
			return ErrWeakJWTSecret
		}
		if c.LogLevel == "debug" || c.LogLevel == "trace" {
			return ErrDebugInProduction
		}
		return nil
	}

	// In development, fall back to a well-known secret so the app runs out of the box
	if c.Auth.JWTSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: JWT secret not set. Set JWT_SECRET_KEY environment variable for security.\n")
		c.Auth.JWTSecret = constants.DevJWTSecret
	}
	return nil
}
