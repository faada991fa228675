package logger

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so logs can be aggregated and queried per meeting
// and per pipeline stage.
const (
	// Request handling
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyDuration  = "duration"
	KeyClientIP  = "client_ip"

	// Domain
	KeyMeetingID = "meeting_id"
	KeyUserID    = "user_id"
	KeyBotID     = "bot_id"
	KeyState     = "state"
	KeyKind      = "kind"
	KeyVersion   = "version"
	KeyHash      = "hash"
	KeyVaultPath = "vault_path"

	// Pipeline
	KeyStage    = "stage"
	KeySeconds  = "seconds"
	KeyMock     = "mock"
	KeyEngine   = "engine"
	KeyExitCode = "exit_code"

	// Errors
	KeyError = "error"
)
