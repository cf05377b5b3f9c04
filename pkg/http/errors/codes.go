package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeSessionExpired         = "session_expired"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"

	// Resource errors
	ErrCodeNotFound        = "not_found"
	ErrCodeHistoryNotFound = "history_not_found"
	ErrCodeCaptureNotFound = "capture_not_found"
	ErrCodeUsernameTaken   = "username_taken"

	// Review errors
	ErrCodeQueueEmpty  = "queue_empty"
	ErrCodeSessionBusy = "session_busy"
	ErrCodeResetFailed = "reset_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeStoreLocked        = "store_locked"
	ErrCodeUpstreamError      = "upstream_error"
)
