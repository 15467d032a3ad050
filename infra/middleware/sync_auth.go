// Package middleware provides HTTP middleware for the API surface.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// JWT Auth (HMAC)
// =============================================================================

// Claims carried by the client token. AccountID scopes every queue and
// cache operation.
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// JWTAuth validates the bearer token and stores the account in the request
// context under "account_id".
func JWTAuth(secret []byte, log zerolog.Logger) fiber.Handler {
	authLog := log.With().Str("component", "jwt_auth").Logger()

	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			// EventSource cannot set headers; allow the token in a query
			// param for the SSE stream.
			header = c.Query("token")
		} else {
			header = strings.TrimPrefix(header, "Bearer ")
		}
		if header == "" {
			return unauthorized(c, "missing token")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(header, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			authLog.Debug().Err(err).Msg("token rejected")
			return unauthorized(c, "invalid token")
		}
		if claims.AccountID == "" {
			return unauthorized(c, "token missing account")
		}

		c.Locals("account_id", claims.AccountID)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"code": "AUTH_REQUIRED", "message": message},
	})
}

// =============================================================================
// Request ID
// =============================================================================

// RequestID assigns each request a UUID for log correlation and echoes it
// in the response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set("X-Request-ID", id)
		return c.Next()
	}
}
