package provider

import (
	"errors"
	"strconv"
	"strings"
)

// ErrorCode is the discriminated ProviderError taxonomy (spec §4.5).
type ErrorCode string

const (
	ErrInvalidOptions ErrorCode = "INVALID_OPTIONS"
	ErrInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrInvalidEvent   ErrorCode = "INVALID_EVENT"
	ErrMissingResult  ErrorCode = "MISSING_RESULT"
	ErrAuth           ErrorCode = "AUTH_ERROR"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrTransport      ErrorCode = "TRANSPORT_ERROR"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrTimeout:     true,
	ErrRateLimited: true,
	ErrTransport:   true,
}

// Error is a classified provider failure.
type Error struct {
	Code           ErrorCode
	Retryable      bool
	Classification string
	Message        string
	cause          error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a classified Error, marking it retryable per the
// taxonomy's fixed retryability table.
func NewError(code ErrorCode, classification, message string, cause error) *Error {
	return &Error{Code: code, Retryable: retryableCodes[code], Classification: classification, Message: message, cause: cause}
}

// Classify maps a raw error and optional HTTP status code to a
// provider Error following spec §4.5's classification rules: auth
// wording or 401/403 ⇒ auth (auth keywords plus 403 still classify as
// auth even alongside rate-limit wording); 429 or explicit rate-limit
// wording ⇒ rate-limit; ETIMEDOUT or "timeout" wording ⇒ timeout;
// ECONNRESET, "socket", "stream" ⇒ transport; 5xx ⇒ internal
// (retryable); otherwise internal.
func Classify(statusCode int, raw error) *Error {
	msg := ""
	if raw != nil {
		msg = strings.ToLower(raw.Error())
	}
	hasAuthWording := strings.Contains(msg, "auth") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "permission")
	isAuthStatus := statusCode == 401 || statusCode == 403
	if hasAuthWording || isAuthStatus {
		return NewError(ErrAuth, "auth", "provider authentication failed", raw)
	}
	if statusCode == 429 || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate-limit") || strings.Contains(msg, "too many requests") {
		return NewError(ErrRateLimited, "rate_limit", "provider rate limit exceeded", raw)
	}
	if strings.Contains(msg, "etimedout") || strings.Contains(msg, "timeout") {
		return NewError(ErrTimeout, "timeout", "provider request timed out", raw)
	}
	if strings.Contains(msg, "econnreset") || strings.Contains(msg, "socket") || strings.Contains(msg, "stream") {
		return NewError(ErrTransport, "transport", "provider transport failure", raw)
	}
	if statusCode >= 500 && statusCode < 600 {
		return NewError(ErrInternal, "internal_retryable", "provider internal error ("+strconv.Itoa(statusCode)+")", raw)
	}
	return NewError(ErrInternal, "internal", "provider error", raw)
}

// AsError reports whether err (or something it wraps) is a *Error.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
