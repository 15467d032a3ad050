package http

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"mailsync/pkg/apperr"
)

func doErrorRequest(t *testing.T, cause error) (*APIResponse, string, int) {
	t.Helper()
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return AppErrorResponse(c, cause)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var envelope APIResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return &envelope, resp.Header.Get(fiber.HeaderRetryAfter), resp.StatusCode
}

func TestAppErrorResponseCircuitOpenCarriesRetryAfter(t *testing.T) {
	envelope, retryAfter, status := doErrorRequest(t, apperr.CircuitOpen("gmail"))

	if status != fiber.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
	if envelope.Error == nil || envelope.Error.Code != apperr.CodeCircuitOpen {
		t.Errorf("error = %+v, want code %s", envelope.Error, apperr.CodeCircuitOpen)
	}
	if retryAfter == "" {
		t.Error("expected a Retry-After hint for a short-circuited call")
	}
}

func TestAppErrorResponseRateLimitedCarriesRetryAfter(t *testing.T) {
	envelope, retryAfter, status := doErrorRequest(t, apperr.RateLimited("outlook", "throttled"))

	if status != fiber.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
	if envelope.Error == nil || envelope.Error.Code != apperr.CodeRateLimited {
		t.Errorf("error = %+v, want code %s", envelope.Error, apperr.CodeRateLimited)
	}
	if retryAfter == "" {
		t.Error("expected a Retry-After hint for a throttled call")
	}
}

func TestAppErrorResponsePlainErrorHasNoRetryAfter(t *testing.T) {
	envelope, retryAfter, status := doErrorRequest(t, errors.New("boom"))

	if status != fiber.StatusBadGateway {
		t.Errorf("status = %d, want 502 for an unclassified error", status)
	}
	if envelope.Success {
		t.Error("success = true on error response")
	}
	if retryAfter != "" {
		t.Errorf("retry-after = %q, want empty for an unclassified error", retryAfter)
	}
}
