package constants

// Default server configuration values
const (
	DefaultServerPort                 = 8000
	DefaultServerReadHeaderTimeoutSec = 10
	DefaultServerIdleTimeoutSec       = 60
	DefaultGracefulShutdownSec        = 30
	DefaultMaxRequestBodyBytes        = 1 << 20
	DefaultClientURL                  = "http://localhost:3000"
)

// Default relay configuration values
const (
	DefaultDedupRetentionSec      = 30
	DefaultMaintenanceIntervalSec = 10
	DefaultWSWriteTimeoutSec      = 10
	DefaultWSPingIntervalSec      = 30
	DefaultWSReadLimitBytes       = 64 << 10
)

// Default auth configuration values
const (
	DefaultTokenTTLSec = 84600
	DefaultBcryptCost  = 10
	// DevJWTSecret is accepted only outside production mode.
	DevJWTSecret = "THIS_IS_A_JWT_SECRET_KEY"
)

// Default database configuration values
const (
	DefaultDatabasePath       = "chatrelay.db"
	DefaultDatabaseMaxOpen    = 1
	DefaultRetryBackoffMs     = 500
	DefaultMaxBackoffMs       = 5000
	DefaultMaxAttempts        = 5
	DefaultDBConnectRetries   = 5
	DefaultEncryptionSaltSize = 32
)

// Field limits
const (
	MaxUserIDLength     = 128
	MaxEmailLength      = 254
	MaxFullNameLength   = 100
	MinPasswordLength   = 6
	MaxPasswordLength   = 72
	MaxMessageLength    = 4096
	MaxSearchTermLength = 254
)

// Privacy settings
const (
	DefaultIDMaskKeep = 4
)
