package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// Error codes
const (
	// Retryable
	CodeTransient   = "TRANSIENT"
	CodeRateLimited = "RATE_LIMITED"

	// Auth
	CodeAuthRequired = "AUTH_REQUIRED"

	// Terminal
	CodePermanent  = "PERMANENT"
	CodeBadPayload = "BAD_PAYLOAD"
	CodeNotFound   = "NOT_FOUND"

	// Engine-internal short circuits
	CodeCircuitOpen = "CIRCUIT_OPEN"
	CodeConflict    = "CONFLICT"

	// Infrastructure
	CodeDatabaseError = "DATABASE_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

// AppError represents a structured application error.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code carried by the error.
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Transient marks an error that should be retried with backoff
// (network failure, 5xx, 429).
func Transient(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeTransient,
		Message: fmt.Sprintf("transient %s error", provider),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

// RateLimited marks a provider 429.
func RateLimited(provider, message string) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: message,
		Status:  http.StatusTooManyRequests,
		Details: map[string]any{"provider": provider},
	}
}

// AuthRequired marks a 401 that survived the single refresh-and-retry.
// The account's queue is paused until the user re-authenticates.
func AuthRequired(accountID string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthRequired,
		Message: "re-authentication required",
		Status:  http.StatusUnauthorized,
		Details: map[string]any{"account_id": accountID},
		Err:     err,
	}
}

// Permanent marks a terminal failure (other 4xx, malformed payload).
func Permanent(provider, message string) *AppError {
	return &AppError{
		Code:    CodePermanent,
		Message: message,
		Status:  http.StatusBadRequest,
		Details: map[string]any{"provider": provider},
	}
}

// CircuitOpen marks a call short-circuited before any network attempt.
func CircuitOpen(provider string) *AppError {
	return &AppError{
		Code:    CodeCircuitOpen,
		Message: fmt.Sprintf("circuit open for %s", provider),
		Status:  http.StatusServiceUnavailable,
		Details: map[string]any{"provider": provider},
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func BadPayload(message string) *AppError {
	return &AppError{
		Code:    CodeBadPayload,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// =============================================================================
// Provider response classification
// =============================================================================

// providerErrorBody matches the JSON error envelope both providers use.
type providerErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ProviderMessage extracts the provider error message from a JSON error body
// when present, else falls back to "status statusText".
func ProviderMessage(status int, body []byte) string {
	if len(body) > 0 {
		var envelope providerErrorBody
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}

// FromStatus classifies a non-2xx provider response. A 401 is returned as
// AuthRequired only by the caller after its refresh-and-retry failed; here it
// is reported so the caller can decide.
func FromStatus(provider string, accountID string, status int, body []byte) *AppError {
	msg := ProviderMessage(status, body)
	switch {
	case status == http.StatusUnauthorized:
		return AuthRequired(accountID, errors.New(msg))
	case status == http.StatusTooManyRequests:
		return RateLimited(provider, msg)
	case status == http.StatusNotFound:
		return NotFound(fmt.Sprintf("%s resource", provider))
	case status >= 500:
		return Transient(provider, errors.New(msg))
	default:
		return Permanent(provider, msg)
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeTransient, "unclassified error", http.StatusBadGateway)
}

// IsRetryable reports whether the modifier should stay pending and back off.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeTransient || appErr.Code == CodeRateLimited
	}
	// Unclassified errors are treated as network failures.
	return true
}

// IsAuth reports whether the error requires user re-authentication.
func IsAuth(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeAuthRequired
}

// IsCircuitOpen reports whether the call was short-circuited.
func IsCircuitOpen(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeCircuitOpen
}
