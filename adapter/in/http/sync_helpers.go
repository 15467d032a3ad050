// Package http exposes the REST and SSE surface for mail clients.
package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"mailsync/pkg/apperr"
)

// =============================================================================
// Request context helpers
// =============================================================================

// AccountID extracts the authenticated account from the request context.
// The JWT middleware sets it; an empty value means the route was mounted
// without auth, which only happens in tests.
func AccountID(c *fiber.Ctx) (string, error) {
	id, _ := c.Locals("account_id").(string)
	if id == "" {
		return "", apperr.New(apperr.CodeAuthRequired, "missing account", fiber.StatusUnauthorized)
	}
	return id, nil
}

// =============================================================================
// Standardized responses
// =============================================================================

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// APIError carries the machine-readable error payload.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SuccessResponse sends a standardized JSON success response.
func SuccessResponse(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorResponse sends a plain error with the given status.
func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: codeForStatus(status), Message: message},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// AppErrorResponse maps an application error onto the response envelope.
// Short-circuited and rate-limited calls carry a Retry-After hint.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	appErr := apperr.AsAppError(err)
	requestID, _ := c.Locals("request_id").(string)
	if apperr.IsCircuitOpen(err) || appErr.Code == apperr.CodeRateLimited {
		c.Set(fiber.HeaderRetryAfter, "30")
	}
	return c.Status(appErr.HTTPStatus()).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeBadPayload
	case fiber.StatusUnauthorized:
		return apperr.CodeAuthRequired
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusConflict:
		return apperr.CodeConflict
	case fiber.StatusTooManyRequests:
		return apperr.CodeRateLimited
	default:
		return apperr.CodeTransient
	}
}
