package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Relay    RelayConfig    `json:"relay"`
	Tracing  TracingConfig  `json:"tracing"`
	Retry    RetryConfig    `json:"retry"`
	LogLevel string         `json:"log_level"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port                 int      `json:"port"`
	Host                 string   `json:"host"`
	ClientURL            string   `json:"client_url"`
	AllowedOrigins       []string `json:"allowed_origins"`
	ReadHeaderTimeoutSec int      `json:"read_header_timeout_sec"`
	IdleTimeoutSec       int      `json:"idle_timeout_sec"`
	ShutdownTimeoutSec   int      `json:"shutdown_timeout_sec"`
	MaxRequestBodyBytes  int64    `json:"max_request_body_bytes"`

	// TrustProxy honours X-Forwarded-For and X-Real-IP for client addresses.
	TrustProxy bool `json:"trust_proxy"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path             string `json:"path"`
	MaxOpenConns     int    `json:"max_open_conns"`
	EnableEncryption bool   `json:"enable_encryption"`
	// EncryptionSecret should come from CHATRELAY_ENCRYPTION_SECRET.
	EncryptionSecret string `json:"-"`
}

// AuthConfig holds password hashing and session token settings
type AuthConfig struct {
	// JWTSecret should come from JWT_SECRET_KEY.
	JWTSecret      string `json:"-"`
	TokenTTLSec    int    `json:"token_ttl_sec"`
	BcryptCost     int    `json:"bcrypt_cost"`
	RequireWSToken bool   `json:"require_ws_token"`
}

// RelayConfig holds relay engine and WebSocket settings
type RelayConfig struct {
	DedupRetentionSec      int   `json:"dedup_retention_sec"`
	MaintenanceIntervalSec int   `json:"maintenance_interval_sec"`
	WriteTimeoutSec        int   `json:"write_timeout_sec"`
	PingIntervalSec        int   `json:"ping_interval_sec"`
	ReadLimitBytes         int64 `json:"read_limit_bytes"`
	VerboseLogging         bool  `json:"verbose_logging"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseStdout    bool    `json:"use_stdout"`
	Environment  string  `json:"environment"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
