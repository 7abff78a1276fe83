package service

// Logging Standards for chatrelay
//
// Standard field names and message patterns shared by the HTTP layer, the
// services and the relay.

// Standard Field Names
const (
	// Core identifiers
	LogFieldUserID         = "user_id"
	LogFieldSenderID       = "sender_id"
	LogFieldReceiverID     = "receiver_id"
	LogFieldConversationID = "conversation_id"
	LogFieldMessageID      = "message_id"
	LogFieldConnID         = "conn_id"
	LogFieldEmail          = "email"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldEvent     = "event"
	LogFieldOutcome   = "outcome"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Request tracing
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// HTTP
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "size_bytes"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldStatusCode = "status_code"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: per-message relay decisions, connection open/close.
// INFO: startup/shutdown, user registration, reconnect replacing a socket.
// WARN: forward failures, retryable database errors, rejected tokens.
// ERROR: failed operations that surface as 5xx.
// FATAL: configuration or database unusable at startup.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"
